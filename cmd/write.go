// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

var writeCmd = &cobra.Command{
	Use:   "write NAME VALUE",
	Short: "Write one register",
	Long: `Write a value to a register of the device profile.

NAME is a register name, a bitmask bit name or a decimal address. VALUE is
parsed according to the register type: numbers for words and temperatures,
true/false for flags, 24 characters of 0/1 for hourly programs.

The device acknowledges a write with a WRITE_ACK frame, which is required.`,
	Example: `  gecostat write TapWaterTemp 50
  gecostat write 304 1`,
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Switch the device on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(cmd, "Enable", (*geco.Session).Enable, "device enabled")
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Switch the device off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(cmd, "Disable", (*geco.Session).Disable, "device disabled")
	},
}

var setTempCmd = &cobra.Command{
	Use:   "settemp NAME CELSIUS",
	Short: "Write a temperature register",
	Args:  cobra.ExactArgs(2),
	RunE:  runSetTemp,
}

func init() {
	rootCmd.AddCommand(writeCmd, enableCmd, disableCmd, setTempCmd)
}

func runWrite(cmd *cobra.Command, args []string) error {
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	reg, err := profile.Schema.Lookup(args[0])
	if err != nil {
		return err
	}
	value, err := geco.ParseValue(reg, args[1])
	if err != nil {
		return err
	}

	return runSessionCommand(cmd, "Register Write", func(s *geco.Session) error {
		return s.WriteRegister(reg.Name, value)
	}, fmt.Sprintf("%s (%d) = %s", reg.Name, reg.Address, value))
}

func runSetTemp(cmd *cobra.Command, args []string) error {
	celsius, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid temperature %q: %v", args[1], err)
	}
	return runSessionCommand(cmd, "Set Temperature", func(s *geco.Session) error {
		return s.SetTemperature(args[0], celsius)
	}, fmt.Sprintf("%s = %g°C", args[0], celsius))
}

// runSessionCommand opens a session, runs fn once and reports success.
func runSessionCommand(cmd *cobra.Command, title string, fn func(*geco.Session) error, done string) error {
	session, link, err := openSession(cmd.Context(), title, nil)
	if err != nil {
		return err
	}
	defer link.Close()

	if err := fn(session); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", valueStyle.Render("SUCCESS:"), done)
	return nil
}
