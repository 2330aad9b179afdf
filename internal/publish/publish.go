// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish delivers decoded readings to MQTT, Redis and an
// in-memory snapshot, and carries register write commands back.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

// Snapshot is one poll's worth of readings
type Snapshot struct {
	Device   string
	Time     time.Time
	Readings geco.Readings
}

// MarshalJSON renders readings as a name to value object.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Device   string                `json:"device"`
		Time     time.Time             `json:"time"`
		Readings map[string]geco.Value `json:"readings"`
	}{s.Device, s.Time, s.Readings.Map()})
}

// Command asks the bridge to write Value (user text) to register Name.
type Command struct {
	Name  string
	Value string
}

// Sink receives snapshots
type Sink interface {
	Publish(ctx context.Context, snap Snapshot) error
	Close() error
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

// Publish implements Sink
func (f Fanout) Publish(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Latest keeps the most recent snapshot for the HTTP surface.
type Latest struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// Publish implements Sink
func (l *Latest) Publish(_ context.Context, snap Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = &snap
	return nil
}

// Close implements Sink
func (l *Latest) Close() error { return nil }

// Get returns the last snapshot, if one was published
func (l *Latest) Get() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snap == nil {
		return Snapshot{}, false
	}
	return *l.snap, true
}
