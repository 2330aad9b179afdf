// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

var (
	packetTestTimeout int
)

// errFrameFound stops the scan at the first valid frame
var errFrameFound = errors.New("frame found")

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid Geco frame",
	Long: `Wait for a valid Geco frame on the connection until timeout.

This command connects to a serial port, TCP converter or WebSocket and waits
for any frame passing both header checksums. Invalid bytes are skipped.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking wiring, baud rate and bus ids before running the bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	var found *geco.Message
	codec, err := newCodec(func(_ *geco.Codec, msg *geco.Message) error {
		found = msg
		return errFrameFound
	})
	if err != nil {
		return err
	}

	link, connInfo, err := OpenLink(cmd.Context(), cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	printBanner("Packet Test",
		fmt.Sprintf("Connection: %s", connInfo),
		fmt.Sprintf("Timeout: %d seconds", packetTestTimeout))
	fmt.Printf("Waiting for valid Geco frame...\n\n")

	scanner := geco.NewScanner(codec)
	deadline := time.Now().Add(time.Duration(packetTestTimeout) * time.Second)
	for found == nil && time.Now().Before(deadline) && cmd.Context().Err() == nil {
		data, err := link.Read(readChunk, readTimeout)
		if err != nil {
			link.Close()
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		if err := scanner.Feed(data); err != nil && !errors.Is(err, errFrameFound) {
			link.Close()
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
	}
	link.Close()

	if found == nil {
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	if scanner.Skipped > 0 {
		fmt.Printf("(skipped %d invalid bytes before sync)\n", scanner.Skipped)
	}
	fmt.Printf("%s Received valid frame\n", valueStyle.Render("SUCCESS:"))
	fmt.Printf("  Function: %s (0x%02X)\n", geco.FormatFunction(found.Soft.Function), found.Soft.Function)
	fmt.Printf("  Hard: %d -> %d\n", found.Hard.From, found.Hard.To)
	fmt.Printf("  Soft: %d -> %d\n", found.Soft.From, found.Soft.To)
	fmt.Printf("  Registers: %d+%d\n", found.Soft.RegisterStart, found.Soft.RegisterCount)
	fmt.Printf("  Length: %d bytes\n", found.Len())
	fmt.Printf("  CRC: 0x%02X / 0x%04X\n", found.Hard.CRC8, found.Soft.CRC16)
	return nil
}
