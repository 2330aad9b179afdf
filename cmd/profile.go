// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

var profileCmd = &cobra.Command{
	Use:   "profile [MODEL]",
	Short: "Print the register map of a device profile",
	Long: `Print the register map of a built-in profile, or of the configured device
when no model is given. The special model "list" shows the built-in profiles.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var (
		profile *geco.Profile
		err     error
	)
	switch {
	case len(args) == 0:
		profile, err = cfg.Profile()
	case args[0] == "list":
		for _, name := range geco.ProfileNames() {
			fmt.Fprintln(out, name)
		}
		return nil
	default:
		profile, err = geco.LoadProfile(args[0])
	}
	if err != nil {
		return err
	}

	writeProfile(out, profile)
	return nil
}

// writeProfile prints the geometry and register table of p
func writeProfile(out io.Writer, p *geco.Profile) {
	fmt.Fprintln(out, titleStyle.Render(strings.ToUpper(p.Name)+" - "+p.Description))
	fmt.Fprintf(out, "%s %d+%d   %s %d-%d (max %d per read)\n",
		labelStyle.Render("Status:"), p.StatusStart, p.StatusCount,
		labelStyle.Render("Config:"), p.ConfigStart, p.MaxAddress, p.MaxCount)
	if p.EnableRegister != "" {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Enable:"), p.EnableRegister)
	}
	fmt.Fprintln(out)

	regs := p.Schema.Registers()
	width := 0
	for _, r := range regs {
		if len(r.Name) > width {
			width = len(r.Name)
		}
	}
	for _, r := range regs {
		fmt.Fprintf(out, "  %4d  %-4s  %-*s  %s\n", r.Address, r.Type, width, r.Name, r.Description)
		for i, bit := range r.Bits {
			if bit != "" {
				fmt.Fprintf(out, "          bit %2d  %s\n", i, bit)
			}
		}
	}
}
