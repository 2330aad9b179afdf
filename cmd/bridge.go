// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/gecostat/internal/bridge"
	"github.com/Thermoquad/gecostat/internal/config"
	"github.com/Thermoquad/gecostat/internal/httpapi"
	"github.com/Thermoquad/gecostat/internal/metrics"
	"github.com/Thermoquad/gecostat/internal/publish"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Poll the device and publish readings to MQTT, Redis and HTTP",
	Long: `Poll the device every poll.interval and publish the decoded status.

Sinks are enabled in the config file or with GECO_* variables:
  mqtt    every reading on <mqtt.topic>/<name>; messages on
          <mqtt.topic>/<name>/set are written back to the device
  redis   a JSON snapshot on redis.channel, the latest one kept
          under <redis.channel>:latest
  http    /api/v1/readings, /api/v1/registers, /metrics, /healthz, /readyz

In eavesdrop mode the bridge only listens and register writes are refused.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	f := bridgeCmd.Flags()
	f.String("mode", "", "Poll mode (direct, eavesdrop)")
	f.Duration("interval", 0, "Poll interval (default 15s)")
	f.Bool("mqtt", false, "Enable the MQTT sink")
	f.Bool("redis", false, "Enable the Redis sink")
	f.Bool("http", false, "Enable the HTTP endpoint")

	bindFlag(bridgeCmd, "poll.mode", "mode")
	bindFlag(bridgeCmd, "poll.interval", "interval")
	bindFlag(bridgeCmd, "mqtt.enabled", "mqtt")
	bindFlag(bridgeCmd, "redis.enabled", "redis")
	bindFlag(bridgeCmd, "http.enabled", "http")
}

// newWriteLimiter builds the limiter for MQTT-requested writes. A
// non-positive rate forbids writes altogether.
func newWriteLimiter(wc config.WritesConfig) *rate.Limiter {
	if wc.Rate <= 0 {
		return rate.NewLimiter(0, 0)
	}
	burst := wc.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(wc.Rate), burst)
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.Named("gecostat")

	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	dial, linkInfo, err := newDialer(cfg.Link)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	appMetrics := metrics.NewAppMetrics(reg)

	latest := &publish.Latest{}
	sinks := publish.Fanout{latest}
	var commands <-chan publish.Command

	if cfg.MQTT.Enabled {
		m := publish.NewMQTT(cfg.MQTT, log)
		sinks = append(sinks, m)
		commands = m.Commands()
	}
	if cfg.Redis.Enabled {
		r, err := publish.NewRedis(cfg.Redis)
		if err != nil {
			sinks.Close()
			return err
		}
		sinks = append(sinks, r)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("close sinks", zap.Error(err))
		}
	}()

	b, err := bridge.New(bridge.Options{
		Poll:      cfg.Poll,
		Link:      cfg.Link,
		Addresses: cfg.Addresses(),
		Profile:   profile,
		Dial:      dial,
		Sink:      sinks,
		Commands:  commands,
		Limiter:   newWriteLimiter(cfg.Writes),
		Metrics:   appMetrics,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	var server *httpapi.Server
	if cfg.HTTP.Enabled {
		server = httpapi.New(cfg.HTTP, latest, profile, metrics.Handler(reg))
		go func() {
			log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := server.Start(); err != nil {
				serverErr <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	log.Info("bridge configured",
		zap.String("link", linkInfo),
		zap.Bool("mqtt", cfg.MQTT.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("http", cfg.HTTP.Enabled))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	bridgeDone := make(chan error, 1)
	go func() {
		bridgeDone <- b.Run(runCtx)
	}()

	select {
	case err = <-bridgeDone:
	case err = <-serverErr:
		cancel()
		<-bridgeDone
	}

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if serr := server.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
			log.Warn("http shutdown", zap.Error(serr))
		}
	}

	log.Info("bridge statistics", zap.String("summary", b.Statistics().String()))
	return err
}
