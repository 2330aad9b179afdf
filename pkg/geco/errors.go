// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"errors"
	"fmt"
)

// Hard header errors
var (
	ErrFrameTooShort        = errors.New("frame too short")
	ErrInvalidStartByte     = errors.New("invalid start byte")
	ErrInvalidConstBytes    = errors.New("invalid hard const bytes")
	ErrInvalidHardChecksum  = errors.New("invalid hard checksum")
	ErrInvalidHardAddress   = errors.New("invalid hard address")
	ErrHardAddressCollision = errors.New("hard from and to address equal")
)

// Soft message errors
var (
	ErrSoftLengthMismatch  = errors.New("soft message length mismatch")
	ErrSoftMessageTooShort = errors.New("soft message too short")
	ErrInvalidSoftChecksum = errors.New("invalid soft checksum")
	ErrInvalidSoftConst    = errors.New("invalid soft const byte")
	ErrInvalidSoftAddress  = errors.New("invalid soft address")
)

// Stream and decode errors
var (
	ErrStuckConsumption  = errors.New("message processing consumed no bytes")
	ErrDecodeOutOfBounds = errors.New("register data shorter than schema")
	ErrMarkerNotFound    = errors.New("cycle marker not found")
	ErrNoResponse        = errors.New("no response from device")
	ErrUnknownRegister   = errors.New("unknown register")
	ErrNotWritable       = errors.New("register type not writable")
	ErrInvalidValue      = errors.New("invalid register value")
	ErrInvalidProfile    = errors.New("invalid device profile")
	ErrInvalidAddresses  = errors.New("invalid bus addresses")
)

// FrameError carries the failing rule together with the observed values.
// Kind is one of the sentinel errors above and is matched by errors.Is.
// Offset is where the failing frame starts in the buffer handed to
// ProcessAll; it is zero for errors from single-frame calls.
type FrameError struct {
	Kind   error
	Offset int
	Detail string
}

// Error implements the error interface
func (e *FrameError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

// Unwrap returns the error kind
func (e *FrameError) Unwrap() error {
	return e.Kind
}

func frameErr(kind error, format string, args ...interface{}) error {
	return &FrameError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IsChecksumError reports whether err is a hard or soft checksum failure.
func IsChecksumError(err error) bool {
	return errors.Is(err, ErrInvalidHardChecksum) || errors.Is(err, ErrInvalidSoftChecksum)
}
