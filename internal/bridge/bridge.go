// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge polls a device on a fixed interval and hands the decoded
// readings to the configured sinks. Register writes requested by a sink
// are applied between polls so that only one exchange uses the bus at a
// time.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/gecostat/internal/config"
	"github.com/Thermoquad/gecostat/internal/metrics"
	"github.com/Thermoquad/gecostat/internal/publish"
	"github.com/Thermoquad/gecostat/pkg/geco"
)

// Bridge errors
var (
	ErrWritesDisabled = errors.New("writes are not possible while eavesdropping")
	ErrThrottled      = errors.New("write rate exceeded")
)

// Link is an open bus connection
type Link interface {
	geco.Stream
	Close() error
}

// Dialer opens a fresh link for one attempt
type Dialer func(ctx context.Context) (Link, error)

// Options wires a bridge together. Metrics and Commands may be nil.
type Options struct {
	Poll      config.PollConfig
	Link      config.LinkConfig
	Addresses geco.Addresses
	Profile   *geco.Profile
	Dial      Dialer
	Sink      publish.Sink
	Commands  <-chan publish.Command
	Limiter   *rate.Limiter
	Metrics   *metrics.AppMetrics
	Logger    *zap.Logger
}

// Bridge runs the poll loop
type Bridge struct {
	opts  Options
	log   *zap.Logger
	stats *geco.Statistics
}

// New validates opts and creates a bridge.
func New(opts Options) (*Bridge, error) {
	if opts.Dial == nil || opts.Sink == nil || opts.Profile == nil {
		return nil, fmt.Errorf("bridge needs a dialer, a sink and a device profile")
	}
	if err := opts.Addresses.Validate(); err != nil {
		return nil, err
	}
	if opts.Poll.Attempts < 1 {
		opts.Poll.Attempts = 1
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bridge{opts: opts, log: opts.Logger.Named("bridge"), stats: geco.NewStatistics()}, nil
}

// Statistics returns the frame counters accumulated so far
func (b *Bridge) Statistics() *geco.Statistics {
	return b.stats
}

// Run polls immediately and then on every interval until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info("bridge started",
		zap.String("device", b.opts.Profile.Name),
		zap.String("mode", b.opts.Poll.Mode),
		zap.Duration("interval", b.opts.Poll.Interval))

	ticker := time.NewTicker(b.opts.Poll.Interval)
	defer ticker.Stop()

	for {
		b.Tick(ctx)
		select {
		case <-ctx.Done():
			b.log.Info("bridge stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one poll, publishes the result and applies queued writes.
func (b *Bridge) Tick(ctx context.Context) {
	readings, err := b.Poll(ctx)
	if err != nil {
		b.observePoll(err)
		b.log.Error("poll failed", zap.Error(err))
	} else {
		b.observePoll(nil)
		if b.opts.Metrics != nil {
			b.opts.Metrics.ObserveReadings(readings)
		}
		snap := publish.Snapshot{Device: b.opts.Profile.Name, Time: time.Now(), Readings: readings}
		if err := b.opts.Sink.Publish(ctx, snap); err != nil {
			b.log.Warn("publish failed", zap.Error(err))
		}
		b.log.Debug("poll done", zap.Int("readings", len(readings)))
	}

	for {
		select {
		case cmd := <-b.opts.Commands:
			if err := b.Write(ctx, cmd); err != nil {
				b.log.Warn("write rejected", zap.String("register", cmd.Name), zap.Error(err))
			}
		default:
			return
		}
	}
}

// Poll reads the device, reopening the link for each of the configured
// attempts.
func (b *Bridge) Poll(ctx context.Context) (geco.Readings, error) {
	var err error
	for attempt := 1; attempt <= b.opts.Poll.Attempts; attempt++ {
		var readings geco.Readings
		readings, err = b.pollOnce(ctx)
		if err == nil {
			return readings, nil
		}
		if b.opts.Metrics != nil {
			b.opts.Metrics.ObserveError(err)
		}
		var fe *geco.FrameError
		if errors.As(err, &fe) || errors.Is(err, geco.ErrNoResponse) {
			b.stats.Update(err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Debug("attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, fmt.Errorf("no data after %d attempts: %w", b.opts.Poll.Attempts, err)
}

func (b *Bridge) pollOnce(ctx context.Context) (geco.Readings, error) {
	var readings geco.Readings
	session, closeLink, err := b.open(ctx, func(c *geco.Codec, msg *geco.Message) error {
		if !msg.CarriesRegisters(c.Addresses()) {
			return nil
		}
		rd, err := c.Decode(msg, b.opts.Poll.IncludeUnknown)
		if err != nil {
			return err
		}
		readings = append(readings, rd...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer closeLink()

	if b.opts.Poll.Mode == config.ModeEavesdrop {
		err = session.Eavesdrop(ctx, 1)
	} else {
		err = session.ReadStatusRegisters()
	}
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// Write applies one command in direct mode, subject to the write limiter.
func (b *Bridge) Write(ctx context.Context, cmd publish.Command) (err error) {
	defer func() { b.observeWrite(err) }()

	if b.opts.Poll.Mode == config.ModeEavesdrop {
		return ErrWritesDisabled
	}
	reg, err := b.opts.Profile.Schema.Lookup(cmd.Name)
	if err != nil {
		return err
	}
	v, err := geco.ParseValue(reg, cmd.Value)
	if err != nil {
		return err
	}
	if !b.opts.Limiter.Allow() {
		return ErrThrottled
	}

	session, closeLink, err := b.open(ctx, nil)
	if err != nil {
		return err
	}
	defer closeLink()

	if err := session.WriteRegister(reg.Name, v); err != nil {
		return err
	}
	b.log.Info("register written", zap.String("register", reg.Name), zap.Stringer("value", v))
	return nil
}

// open dials a link and builds a session whose frames also feed the
// statistics and metrics.
func (b *Bridge) open(ctx context.Context, handler geco.MessageHandler) (*geco.Session, func(), error) {
	link, err := b.opts.Dial(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open link: %w", err)
	}

	codec, err := geco.NewCodec(b.opts.Addresses, b.opts.Profile, func(c *geco.Codec, msg *geco.Message) error {
		b.stats.Record(msg)
		if b.opts.Metrics != nil {
			b.opts.Metrics.ObserveFrame(msg)
		}
		if handler != nil {
			return handler(c, msg)
		}
		return nil
	})
	if err != nil {
		link.Close()
		return nil, nil, err
	}

	session := geco.NewSession(link, codec)
	if b.opts.Link.Timeout > 0 {
		session.ReadTimeout = b.opts.Link.Timeout
	}
	if b.opts.Link.MarkerTimeout > 0 {
		session.MarkerTimeout = b.opts.Link.MarkerTimeout
	}
	if b.opts.Link.Window > 0 {
		session.WindowSize = b.opts.Link.Window
	}

	return session, func() {
		if err := link.Close(); err != nil {
			b.log.Debug("close link", zap.Error(err))
		}
	}, nil
}

func (b *Bridge) observePoll(err error) {
	if b.opts.Metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	b.opts.Metrics.Polls.WithLabelValues(result).Inc()
}

func (b *Bridge) observeWrite(err error) {
	if b.opts.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrThrottled):
		result = "throttled"
	case err != nil:
		result = "error"
	}
	b.opts.Metrics.Writes.WithLabelValues(result).Inc()
}
