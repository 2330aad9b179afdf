// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors and register data that does not fit the device profile.

This command checks every frame on the bus and reports:
  - Checksum failures in either header
  - Bad start or constant bytes, unexpected addresses, length mismatches
  - Register data too short for the profile
  - Statistics and trends (frame rate, error rate, frames per function)

By default, only errors are displayed. Use --show-all to display valid frames too.

Errors seen before the first valid frame only count as skipped bytes, since
listening usually starts in the middle of a frame.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// frameChecker validates frames and keeps statistics for error_detection
type frameChecker struct {
	stats        *geco.Statistics
	showAll      bool
	synchronized bool
}

func (fc *frameChecker) handle(c *geco.Codec, msg *geco.Message) error {
	if !fc.synchronized {
		fc.synchronized = true
		fmt.Printf("%s Synchronized\n\n", valueStyle.Render("[SYNC]"))
	}
	fc.stats.Record(msg)

	if msg.CarriesRegisters(c.Addresses()) {
		if _, err := c.Decode(msg, false); err != nil {
			fc.stats.Update(err)
			printFrameError(err)
			printMessage(msg)
			fmt.Printf("  >>> DECODE FAILED <<<\n\n")
			return nil
		}
	}
	if fc.showAll {
		printMessage(msg)
		fmt.Println()
	}
	return nil
}

func (fc *frameChecker) frameError(err error) {
	// Before the first valid frame these are just partial frames
	if !fc.synchronized {
		return
	}
	fc.stats.Update(err)
	printFrameError(err)
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	checker := &frameChecker{stats: geco.NewStatistics(), showAll: showAll}
	codec, err := newCodec(checker.handle)
	if err != nil {
		return err
	}

	link, connInfo, err := OpenLink(cmd.Context(), cfg.Link)
	if err != nil {
		return err
	}
	defer link.Close()

	mode := "Errors only"
	if showAll {
		mode = "All frames"
	}
	printBanner("Error Detection",
		fmt.Sprintf("Connection: %s", connInfo),
		fmt.Sprintf("Statistics interval: %d seconds | Mode: %s", statsInterval, mode),
		"Press Ctrl+C to exit")

	scanner := geco.NewScanner(codec)
	scanner.OnError = checker.frameError

	interval := time.Duration(statsInterval) * time.Second
	next := time.Now().Add(interval)
	err = scanLink(cmd.Context(), link, scanner, func() {
		if time.Now().Before(next) {
			return
		}
		next = time.Now().Add(interval)
		fmt.Println(renderStatistics(checker.stats))
		fmt.Println()
	})

	fmt.Println(renderStatistics(checker.stats))
	return err
}
