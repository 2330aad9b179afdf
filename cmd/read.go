// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

var (
	readUnknown bool
	readVerbose bool
)

var readCmd = &cobra.Command{
	Use:   "read status|config|range START COUNT",
	Short: "Read registers from the device",
	Long: `Request registers from the device and print the decoded values.

  status              the status block of the device profile
  config              every configuration register, in as many requests
                      as the device allows
  range START COUNT   COUNT address units from START (two per register)

The link must be the only master on the bus: disconnect the controller or
use eavesdrop instead.`,
	Example: `  gecostat read status --url serial:///dev/ttyUSB0
  gecostat read range 120 20 --unknown`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().BoolVar(&readUnknown, "unknown", false, "Also show registers missing from the profile")
	readCmd.Flags().BoolVarP(&readVerbose, "verbose", "v", false, "Print every frame exchanged")
}

// parseRange parses the START COUNT arguments of read range
func parseRange(args []string) (uint16, uint8, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("read range needs START and COUNT")
	}
	start, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start %q: %v", args[0], err)
	}
	count, err := strconv.ParseUint(args[1], 0, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid count %q: %v", args[1], err)
	}
	if count == 0 {
		return 0, 0, fmt.Errorf("count must be positive")
	}
	return uint16(start), uint8(count), nil
}

func runRead(cmd *cobra.Command, args []string) error {
	var read func(s *geco.Session) error
	switch args[0] {
	case "status":
		read = (*geco.Session).ReadStatusRegisters
	case "config":
		read = (*geco.Session).ReadConfigRegisters
	case "range":
		start, count, err := parseRange(args[1:])
		if err != nil {
			return err
		}
		read = func(s *geco.Session) error { return s.ReadRegisters(start, count) }
	default:
		return fmt.Errorf("unknown register set %q (use status, config or range)", args[0])
	}
	if args[0] != "range" && len(args) > 1 {
		return fmt.Errorf("read %s takes no further arguments", args[0])
	}

	var readings geco.Readings
	session, link, err := openSession(cmd.Context(), "Register Read", decodeInto(&readings, readUnknown, readVerbose))
	if err != nil {
		return err
	}
	defer link.Close()

	if err := read(session); err != nil {
		return err
	}

	fmt.Println(renderReadings("Registers", readings))
	return nil
}
