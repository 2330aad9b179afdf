// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/gecostat/internal/config"
	"github.com/Thermoquad/gecostat/internal/logging"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logger  = zap.NewNop()

	// WebSocket connection flags
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "gecostat",
	Short: "Hewalex Geco bus analyzer and bridge",
	Long: `Gecostat - A CLI tool for talking to Hewalex heat pumps and solar sets over
the Geco RS-485 bus.

Reads and writes registers directly, eavesdrops on a controller/device
exchange, logs and checks raw frames, and bridges readings to MQTT, Redis
and an HTTP endpoint.

Connection modes:
  Serial:    --url serial:///dev/ttyUSB0 [--baud 38400]
  TCP:       --url tcp://host:8899 (RS-485 to Ethernet converter)
  WebSocket: --url ws://host/path [--username user]

Settings are read from ./gecostat.yaml or $HOME/.config/gecostat/gecostat.yaml
(or --config), then GECO_* environment variables, then flags.

For WebSocket authentication, the password is read from the GECO_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:      "0.3.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		l, err := logging.InitLogger(c.Logging)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Config file (default ./gecostat.yaml)")

	// Link flags
	pf.StringP("url", "u", "", "Link URL (serial://, tcp://, ws:// or wss://)")
	pf.IntP("baud", "b", 38400, "Baud rate (serial only)")
	pf.Duration("read-timeout", 0, "Response window for direct reads (default 400ms)")

	// Device flags
	pf.StringP("model", "m", "", "Device model (pcwu, zps)")
	pf.String("profile-file", "", "Load the register map from a YAML profile")
	pf.Uint8("device-id", 0, "Hard id of the device (default 2)")
	pf.Uint8("controller-id", 0, "Hard id of the controller (default 1)")

	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	// WebSocket connection flags
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth (ws only)")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	bindFlag(rootCmd, "link.url", "url")
	bindFlag(rootCmd, "link.baud", "baud")
	bindFlag(rootCmd, "link.timeout", "read-timeout")
	bindFlag(rootCmd, "device.model", "model")
	bindFlag(rootCmd, "device.profile_file", "profile-file")
	bindFlag(rootCmd, "ids.device_hard", "device-id")
	bindFlag(rootCmd, "ids.controller_hard", "controller-id")
	bindFlag(rootCmd, "logging.level", "log-level")
}

// bindFlag ties a flag to a config key. Flags left unset fall back to the
// config file and environment.
func bindFlag(cmd *cobra.Command, key, name string) {
	f := cmd.PersistentFlags().Lookup(name)
	if f == nil {
		f = cmd.Flags().Lookup(name)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
