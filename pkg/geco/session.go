// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// Stream is the half-duplex byte channel a session talks over.
//
// Read returns once max bytes arrived or timeout elapsed, possibly with
// fewer (even zero) bytes. ReadUntil stops early once the data read so far
// ends with marker.
type Stream interface {
	FlushInput() error
	Write(p []byte) (int, error)
	Read(max int, timeout time.Duration) ([]byte, error)
	ReadUntil(marker []byte, max int, timeout time.Duration) ([]byte, error)
}

// Session drives exchanges with one device over a stream. A session owns
// the stream for the duration of each call and is not safe for concurrent
// use.
type Session struct {
	stream Stream
	codec  *Codec

	ReadTimeout   time.Duration // response window in direct mode
	MarkerTimeout time.Duration // cycle marker search while eavesdropping
	WindowSize    int           // bytes read per response or cycle
}

// NewSession creates a session with the default timing.
func NewSession(stream Stream, codec *Codec) *Session {
	return &Session{
		stream:        stream,
		codec:         codec,
		ReadTimeout:   DefaultReadTimeout,
		MarkerTimeout: DefaultMarkerTimeout,
		WindowSize:    DefaultWindowSize,
	}
}

// Codec returns the session's codec
func (s *Session) Codec() *Codec {
	return s.codec
}

// ReadRegisters requests count address units from start and hands every
// frame of the response to the codec's handler.
func (s *Session) ReadRegisters(start uint16, count uint8) error {
	req := BuildReadRequest(s.codec.ids, start, count)
	return s.exchange(req)
}

// WriteRegisters writes values, one word per register, from start.
func (s *Session) WriteRegisters(start uint16, values []uint16) error {
	req, err := BuildWriteRequest(s.codec.ids, start, values)
	if err != nil {
		return err
	}
	return s.exchange(req)
}

// WriteRegister encodes v for the register named (or addressed) by ref
// and writes it.
func (s *Session) WriteRegister(ref string, v Value) error {
	schema, err := s.schema()
	if err != nil {
		return err
	}
	addr, b, err := schema.Encode(ref, v)
	if err != nil {
		return err
	}
	return s.WriteRegisters(addr, Words(b))
}

// Enable switches the device on through its enable register.
func (s *Session) Enable() error {
	return s.setEnabled(true)
}

// Disable switches the device off
func (s *Session) Disable() error {
	return s.setEnabled(false)
}

func (s *Session) setEnabled(on bool) error {
	if s.codec.profile == nil || s.codec.profile.EnableRegister == "" {
		return fmt.Errorf("%w: device has no enable register", ErrNotWritable)
	}
	return s.WriteRegister(s.codec.profile.EnableRegister, BoolValue(on))
}

// SetTemperature writes a temperature in degrees Celsius to a temp or
// te10 register; scaling is applied by the register type.
func (s *Session) SetTemperature(ref string, celsius float64) error {
	schema, err := s.schema()
	if err != nil {
		return err
	}
	reg, err := schema.Lookup(ref)
	if err != nil {
		return err
	}
	if reg.Type != TypeTemp && reg.Type != TypeTemp10 {
		return frameErr(ErrInvalidValue, "%s is a %s register, not a temperature", reg.Name, reg.Type)
	}
	return s.WriteRegister(reg.Name, FloatValue(celsius))
}

// ReadStatusRegisters reads the profile's status block.
func (s *Session) ReadStatusRegisters() error {
	if s.codec.profile == nil {
		return fmt.Errorf("%w: session has no device profile", ErrInvalidProfile)
	}
	b := s.codec.profile.StatusBlock()
	return s.ReadRegisters(b.Start, b.Count)
}

// ReadConfigRegisters reads the whole config range, split into as many
// requests as the profile's batch size requires.
func (s *Session) ReadConfigRegisters() error {
	if s.codec.profile == nil {
		return fmt.Errorf("%w: session has no device profile", ErrInvalidProfile)
	}
	for _, b := range s.codec.profile.ConfigBlocks() {
		if err := s.ReadRegisters(b.Start, b.Count); err != nil {
			return fmt.Errorf("config registers %d+%d: %w", b.Start, b.Count, err)
		}
	}
	return nil
}

// exchange writes req after flushing stale input and processes the reply
// strictly: any malformed frame fails the whole exchange.
func (s *Session) exchange(req []byte) error {
	if err := s.stream.FlushInput(); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	if _, err := s.stream.Write(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	resp, err := s.stream.Read(s.WindowSize, s.ReadTimeout)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(resp) == 0 {
		return ErrNoResponse
	}
	_, err = s.codec.ProcessAll(resp, false)
	return err
}

// Eavesdrop passively follows the controller/device exchange for the
// given number of cycles, or until ctx is done when cycles <= 0. Each
// cycle seeks the cycle marker, captures the rest of the cycle within the
// read timeout and hands every complete frame to the handler. Trailing
// partial bytes are dropped at the end of each cycle.
func (s *Session) Eavesdrop(ctx context.Context, cycles int) error {
	marker := CycleMarker(s.codec.ids)

	if err := s.stream.FlushInput(); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	for n := 0; cycles <= 0 || n < cycles; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.eavesdropCycle(marker); err != nil {
			return fmt.Errorf("cycle %d: %w", n+1, err)
		}
	}
	return nil
}

func (s *Session) eavesdropCycle(marker []byte) error {
	seen, err := s.stream.ReadUntil(marker, s.WindowSize, s.MarkerTimeout)
	if err != nil {
		return fmt.Errorf("seek marker: %w", err)
	}
	if !bytes.HasSuffix(seen, marker) {
		return frameErr(ErrMarkerNotFound, "%d bytes scanned in %s", len(seen), s.MarkerTimeout)
	}

	window, err := s.stream.Read(s.WindowSize, s.ReadTimeout)
	if err != nil {
		return fmt.Errorf("capture cycle: %w", err)
	}

	buf := make([]byte, 0, len(marker)+len(window))
	buf = append(buf, marker...)
	buf = append(buf, window...)
	_, err = s.codec.ProcessAll(buf, true)
	return err
}

func (s *Session) schema() (*Schema, error) {
	if s.codec.profile == nil {
		return nil, fmt.Errorf("%w: session has no device profile", ErrInvalidProfile)
	}
	return s.codec.profile.Schema, nil
}
