// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

var (
	eavesdropCycles  int
	eavesdropRecord  string
	eavesdropUnknown bool
	eavesdropFrames  bool
)

var eavesdropCmd = &cobra.Command{
	Use:   "eavesdrop",
	Short: "Decode the controller/device exchange without sending anything",
	Long: `Listen to a bus where the controller is still the master.

Each cycle waits for the controller's "read 20 registers from 100" request,
reads the following window of traffic and decodes every frame in it. The
status the device pushes to the controller is printed as registers.

Use --record to append every frame to a CBOR capture file for replay.`,
	RunE: runEavesdrop,
}

func init() {
	rootCmd.AddCommand(eavesdropCmd)
	eavesdropCmd.Flags().IntVarP(&eavesdropCycles, "cycles", "n", 1, "Number of cycles to decode (0 runs until interrupted)")
	eavesdropCmd.Flags().StringVar(&eavesdropRecord, "record", "", "Append frames to a capture file")
	eavesdropCmd.Flags().BoolVar(&eavesdropUnknown, "unknown", false, "Also show registers missing from the profile")
	eavesdropCmd.Flags().BoolVar(&eavesdropFrames, "frames", false, "Print every frame, not only decoded registers")
}

// openCapture opens path for appending, or returns nil when path is empty
func openCapture(path string) (*geco.CaptureWriter, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open capture: %w", err)
	}
	return geco.NewCaptureWriter(f), func() { f.Close() }, nil
}

func runEavesdrop(cmd *cobra.Command, args []string) error {
	capture, closeCapture, err := openCapture(eavesdropRecord)
	if err != nil {
		return err
	}
	defer closeCapture()

	handler := func(c *geco.Codec, msg *geco.Message) error {
		if capture != nil {
			if err := capture.WriteMessage(msg); err != nil {
				return err
			}
		}
		if eavesdropFrames {
			printMessage(msg)
		}
		if !msg.CarriesRegisters(c.Addresses()) {
			return nil
		}
		readings, err := c.Decode(msg, eavesdropUnknown)
		if err != nil {
			return err
		}
		title := fmt.Sprintf("[%s] %s %d+%d", msg.Timestamp.Format("15:04:05.000"),
			geco.FormatFunction(msg.Soft.Function), msg.Soft.RegisterStart, msg.Soft.RegisterCount)
		fmt.Println(renderReadings(title, readings))
		return nil
	}

	session, link, err := openSession(cmd.Context(), "Eavesdrop", handler)
	if err != nil {
		return err
	}
	defer link.Close()

	err = session.Eavesdrop(cmd.Context(), eavesdropCycles)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
