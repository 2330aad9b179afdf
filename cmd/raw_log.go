// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/internal/bridge"
	"github.com/Thermoquad/gecostat/pkg/geco"
)

// Link polling for the listening commands
const (
	readChunk   = 256
	readTimeout = 100 * time.Millisecond
)

var rawLogRecord string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display Geco frames as they arrive.

Unlike eavesdrop, raw_log does not wait for the cycle marker: it scans the
byte stream, resynchronises on the next start byte after any damaged frame
and prints both headers and the register data of every frame.

Supports serial, TCP and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Append frames to a capture file")
}

// scanLink feeds everything read from link into scanner until ctx is done.
// A closed WebSocket ends the scan without error.
func scanLink(ctx context.Context, link bridge.Link, scanner *geco.Scanner, idle func()) error {
	for ctx.Err() == nil {
		data, err := link.Read(readChunk, readTimeout)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := scanner.Feed(data); err != nil {
			return err
		}
		if idle != nil {
			idle()
		}
	}
	return nil
}

func runRawLog(cmd *cobra.Command, args []string) error {
	capture, closeCapture, err := openCapture(rawLogRecord)
	if err != nil {
		return err
	}
	defer closeCapture()

	codec, err := newCodec(func(_ *geco.Codec, msg *geco.Message) error {
		printMessage(msg)
		fmt.Println()
		if capture != nil {
			return capture.WriteMessage(msg)
		}
		return nil
	})
	if err != nil {
		return err
	}

	link, connInfo, err := OpenLink(cmd.Context(), cfg.Link)
	if err != nil {
		return err
	}
	defer link.Close()

	printBanner("Raw Frame Log", fmt.Sprintf("Connection: %s", connInfo), "Press Ctrl+C to exit")

	scanner := geco.NewScanner(codec)
	scanner.OnError = printFrameError
	return scanLink(cmd.Context(), link, scanner, nil)
}
