// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates on a link
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames    uint64
	ValidFrames    uint64
	ChecksumErrors uint64
	HeaderErrors   uint64
	AddressErrors  uint64
	LengthErrors   uint64
	DecodeErrors   uint64
	Timeouts       uint64

	ByFunction map[uint8]uint64 // valid frames per function code

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByFunction:     make(map[uint8]uint64),
	}
}

// Record counts a valid frame under its function code.
func (s *Statistics) Record(msg *Message) {
	s.Update(nil)
	s.ByFunction[msg.Soft.Function]++
}

// Update counts one frame, or one failed attempt at one.
func (s *Statistics) Update(err error) {
	s.LastUpdateTime = time.Now()

	switch {
	case err == nil:
		s.TotalFrames++
		s.ValidFrames++
	case errors.Is(err, ErrNoResponse), errors.Is(err, ErrMarkerNotFound):
		s.Timeouts++
	case IsChecksumError(err):
		s.TotalFrames++
		s.ChecksumErrors++
	case errors.Is(err, ErrInvalidHardAddress), errors.Is(err, ErrInvalidSoftAddress),
		errors.Is(err, ErrHardAddressCollision):
		s.TotalFrames++
		s.AddressErrors++
	case errors.Is(err, ErrSoftLengthMismatch), errors.Is(err, ErrSoftMessageTooShort),
		errors.Is(err, ErrFrameTooShort), errors.Is(err, ErrStuckConsumption):
		s.TotalFrames++
		s.LengthErrors++
	case errors.Is(err, ErrDecodeOutOfBounds):
		s.DecodeErrors++
	default:
		s.TotalFrames++
		s.HeaderErrors++
	}
}

// Errors returns the total of all error counters
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.HeaderErrors + s.AddressErrors + s.LengthErrors + s.DecodeErrors + s.Timeouts
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	pct := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, pct(s.ValidFrames))

	for _, fnc := range []uint8{FncReadRequest, FncReadResponse, FncWrite, FncWriteAck} {
		if n := s.ByFunction[fnc]; n > 0 {
			result += fmt.Sprintf("  %-14s %8d\n", FormatFunction(fnc)+":", n)
		}
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, pct(s.ChecksumErrors))
	}
	if s.HeaderErrors > 0 {
		result += fmt.Sprintf("Header Errors:   %8d (%.1f%%)\n", s.HeaderErrors, pct(s.HeaderErrors))
	}
	if s.AddressErrors > 0 {
		result += fmt.Sprintf("Address Errors:  %8d (%.1f%%)\n", s.AddressErrors, pct(s.AddressErrors))
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d (%.1f%%)\n", s.LengthErrors, pct(s.LengthErrors))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}
