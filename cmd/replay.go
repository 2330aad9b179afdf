// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

var (
	replayFrames  bool
	replayUnknown bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode frames from a capture file",
	Long: `Feed a capture written by eavesdrop --record or raw_log --record through the
decoder as if the frames were read from the bus.

The device profile and bus ids must match the ones used while recording.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayFrames, "frames", false, "Print every frame, not only decoded registers")
	replayCmd.Flags().BoolVar(&replayUnknown, "unknown", false, "Also show registers missing from the profile")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	stats := geco.NewStatistics()
	codec, err := newCodec(func(c *geco.Codec, msg *geco.Message) error {
		stats.Record(msg)
		if replayFrames {
			printMessage(msg)
		}
		if !msg.CarriesRegisters(c.Addresses()) {
			return nil
		}
		readings, err := c.Decode(msg, replayUnknown)
		if err != nil {
			return err
		}
		title := fmt.Sprintf("[%s] %s %d+%d", msg.Timestamp.Format("15:04:05.000"),
			geco.FormatFunction(msg.Soft.Function), msg.Soft.RegisterStart, msg.Soft.RegisterCount)
		fmt.Println(renderReadings(title, readings))
		return nil
	})
	if err != nil {
		return err
	}

	printBanner("Replay", fmt.Sprintf("Capture: %s", args[0]))

	n, err := geco.Replay(f, codec)
	fmt.Printf("\n%d records replayed\n", n)
	fmt.Println(renderStatistics(stats))
	return err
}
