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
	pingTimeout int
	pingCount   int
)

// errPong stops the scan at the device's read response
var errPong = errors.New("pong")

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the device by reading its first status register",
	Long: `Send small read requests to the device and wait for each READ_RESPONSE.

This command tests bidirectional communication with the device: wiring,
baud rate, bus ids and the checksums in both directions.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	codec, err := newCodec(func(c *geco.Codec, msg *geco.Message) error {
		if msg.Soft.Function == geco.FncReadResponse && msg.Hard.From == c.Addresses().DeviceHard {
			return errPong
		}
		return nil
	})
	if err != nil {
		return err
	}

	link, connInfo, err := OpenLink(cmd.Context(), cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	printBanner("Ping",
		fmt.Sprintf("Connection: %s", connInfo),
		fmt.Sprintf("Timeout: %d seconds per ping | Count: %d pings", pingTimeout, pingCount))

	start := codec.Profile().StatusStart
	request := geco.BuildReadRequest(codec.Addresses(), start, geco.RegisterWidth)
	successCount := 0

	for i := 1; i <= pingCount && cmd.Context().Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		if err := link.FlushInput(); err != nil {
			fmt.Printf("FLUSH FAILED: %v\n", err)
			continue
		}
		sent := time.Now()
		if _, err := link.Write(request); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			continue
		}

		scanner := geco.NewScanner(codec)
		deadline := sent.Add(time.Duration(pingTimeout) * time.Second)
		var result error
		for result == nil && time.Now().Before(deadline) {
			data, err := link.Read(readChunk, readTimeout)
			if err != nil {
				result = err
				break
			}
			result = scanner.Feed(data)
		}

		switch {
		case errors.Is(result, errPong):
			fmt.Printf("%s from device %d, rtt=%v\n", valueStyle.Render("PONG"),
				codec.Addresses().DeviceHard, time.Since(sent).Round(time.Millisecond))
			successCount++
		case result != nil:
			fmt.Printf("%s %v\n", errorStyle.Render("READ FAILED:"), result)
		default:
			fmt.Printf("%s (no response in %ds)\n", warningStyle.Render("TIMEOUT"), pingTimeout)
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	failCount := pingCount - successCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		link.Close()
		os.Exit(1)
	}
	return nil
}
