// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/gecostat/internal/config"
	"github.com/Thermoquad/gecostat/internal/metrics"
	"github.com/Thermoquad/gecostat/internal/publish"
	"github.com/Thermoquad/gecostat/pkg/geco"
)

const (
	// device reply: T1=21.5, T2=-3.2
	replyTemps = "69 01 02 84 00 00 10 01 01 00 02 00 50 80 00 04 80 00 d7 00 e0 ff c6 3f"
	// device ack for a write at 304
	replyAck304 = "69 01 02 84 00 00 0c 84 01 00 02 00 70 80 00 00 30 01 92 1b"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// fakeLink answers every Read with the next canned reply.
type fakeLink struct {
	replies [][]byte
	untils  [][]byte
	writes  [][]byte
	closed  bool
}

func (f *fakeLink) FlushInput() error { return nil }

func (f *fakeLink) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeLink) Read(int, time.Duration) ([]byte, error) {
	if len(f.replies) == 0 {
		return nil, nil
	}
	b := f.replies[0]
	f.replies = f.replies[1:]
	return b, nil
}

func (f *fakeLink) ReadUntil([]byte, int, time.Duration) ([]byte, error) {
	if len(f.untils) == 0 {
		return nil, nil
	}
	b := f.untils[0]
	f.untils = f.untils[1:]
	return b, nil
}

func (f *fakeLink) Close() error {
	f.closed = true
	return nil
}

// dialer hands out links in order and fails once they run out.
type dialer struct {
	links []*fakeLink
	dials int
}

func (d *dialer) dial(context.Context) (Link, error) {
	d.dials++
	if len(d.links) == 0 {
		return nil, errors.New("connection refused")
	}
	l := d.links[0]
	d.links = d.links[1:]
	return l, nil
}

type fixture struct {
	bridge  *Bridge
	dialer  *dialer
	latest  *publish.Latest
	metrics *metrics.AppMetrics
}

func newFixture(t *testing.T, mode string, links ...*fakeLink) *fixture {
	profile, err := geco.LoadProfile("pcwu")
	require.NoError(t, err)

	d := &dialer{links: links}
	latest := &publish.Latest{}
	m := metrics.NewAppMetrics(prometheus.NewRegistry())

	b, err := New(Options{
		Poll:      config.PollConfig{Interval: time.Hour, Attempts: 3, Mode: mode},
		Addresses: geco.DefaultAddresses(),
		Profile:   profile,
		Dial:      d.dial,
		Sink:      latest,
		Limiter:   rate.NewLimiter(rate.Every(time.Hour), 1),
		Metrics:   m,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return &fixture{bridge: b, dialer: d, latest: latest, metrics: m}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestPoll_Direct(t *testing.T) {
	link := &fakeLink{replies: [][]byte{unhex(t, replyTemps)}}
	f := newFixture(t, config.ModeDirect, link)

	readings, err := f.bridge.Poll(context.Background())
	require.NoError(t, err)

	m := readings.Map()
	assert.Equal(t, geco.FloatValue(21.5), m["T1"])
	assert.Equal(t, geco.FloatValue(-3.2), m["T2"])
	assert.True(t, link.closed)
	require.Len(t, link.writes, 1)
	assert.Equal(t, geco.BuildReadRequest(geco.DefaultAddresses(), 120, 104), link.writes[0])
	assert.Equal(t, uint64(1), f.bridge.Statistics().ValidFrames)
}

func TestPoll_RetriesWithFreshLink(t *testing.T) {
	silent := &fakeLink{}
	good := &fakeLink{replies: [][]byte{unhex(t, replyTemps)}}
	f := newFixture(t, config.ModeDirect, silent, good)

	readings, err := f.bridge.Poll(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, readings)
	assert.Equal(t, 2, f.dialer.dials)
	assert.True(t, silent.closed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FrameErrors.WithLabelValues("no_response")))
}

func TestPoll_GivesUp(t *testing.T) {
	f := newFixture(t, config.ModeDirect, &fakeLink{}, &fakeLink{}, &fakeLink{}, &fakeLink{})

	_, err := f.bridge.Poll(context.Background())
	assert.ErrorIs(t, err, geco.ErrNoResponse)
	assert.ErrorContains(t, err, "3 attempts")
	assert.Equal(t, 3, f.dialer.dials)
	assert.Equal(t, uint64(3), f.bridge.Statistics().Timeouts)
}

func TestPoll_DialFailure(t *testing.T) {
	f := newFixture(t, config.ModeDirect)

	_, err := f.bridge.Poll(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 3, f.dialer.dials)
}

func TestPoll_Eavesdrop(t *testing.T) {
	marker := geco.CycleMarker(geco.DefaultAddresses())
	full := geco.BuildReadRequest(geco.DefaultAddresses(), 100, 20)
	window := append(append([]byte(nil), full[len(full)-2:]...), unhex(t, replyTemps)...)

	link := &fakeLink{untils: [][]byte{marker}, replies: [][]byte{window}}
	f := newFixture(t, config.ModeEavesdrop, link)

	readings, err := f.bridge.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, geco.FloatValue(21.5), readings.Map()["T1"])
	assert.Empty(t, link.writes)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Frames.WithLabelValues("READ_REQUEST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Frames.WithLabelValues("READ_RESPONSE")))
}

func TestTick_PublishesAndWrites(t *testing.T) {
	pollLink := &fakeLink{replies: [][]byte{unhex(t, replyTemps)}}
	writeLink := &fakeLink{replies: [][]byte{unhex(t, replyAck304)}}
	f := newFixture(t, config.ModeDirect, pollLink, writeLink)

	commands := make(chan publish.Command, 2)
	commands <- publish.Command{Name: "HeatPumpEnabled", Value: "on"}
	f.bridge.opts.Commands = commands

	f.bridge.Tick(context.Background())

	snap, ok := f.latest.Get()
	require.True(t, ok)
	assert.Equal(t, "pcwu", snap.Device)
	v, ok := snap.Readings.Get("T1")
	require.True(t, ok)
	assert.Equal(t, geco.FloatValue(21.5), v)

	require.Len(t, writeLink.writes, 1)
	assert.Equal(t, unhex(t, "69 02 01 84 00 00 0e 89 02 00 01 00 60 80 00 02 30 01 01 00 23 85"), writeLink.writes[0])
	assert.Empty(t, commands)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Polls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Writes.WithLabelValues("ok")))
	assert.Equal(t, 21.5, testutil.ToFloat64(f.metrics.Registers.WithLabelValues("T1")))
}

func TestTick_PollFailure(t *testing.T) {
	f := newFixture(t, config.ModeDirect)
	f.bridge.Tick(context.Background())

	_, ok := f.latest.Get()
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Polls.WithLabelValues("error")))
}

func TestWrite_Rejections(t *testing.T) {
	f := newFixture(t, config.ModeDirect, &fakeLink{replies: [][]byte{unhex(t, replyAck304)}})
	ctx := context.Background()

	assert.ErrorIs(t, f.bridge.Write(ctx, publish.Command{Name: "Nope", Value: "1"}), geco.ErrUnknownRegister)
	assert.ErrorIs(t, f.bridge.Write(ctx, publish.Command{Name: "HeatPumpEnabled", Value: "maybe"}), geco.ErrInvalidValue)

	require.NoError(t, f.bridge.Write(ctx, publish.Command{Name: "HeatPumpEnabled", Value: "1"}))
	assert.ErrorIs(t, f.bridge.Write(ctx, publish.Command{Name: "HeatPumpEnabled", Value: "0"}), ErrThrottled)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Writes.WithLabelValues("throttled")))

	e := newFixture(t, config.ModeEavesdrop)
	assert.ErrorIs(t, e.bridge.Write(ctx, publish.Command{Name: "HeatPumpEnabled", Value: "1"}), ErrWritesDisabled)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	link := &fakeLink{replies: [][]byte{unhex(t, replyTemps)}}
	f := newFixture(t, config.ModeDirect, link)

	done := make(chan error, 1)
	go func() { done <- f.bridge.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := f.latest.Get()
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.True(t, link.closed)
}
