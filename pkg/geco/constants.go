// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package geco implements the two-layer serial protocol spoken between
// Geco controllers (G-422, G-426) and the executive modules of Hewalex
// heat pumps and solar sets.
//
// A frame is an 8-byte hard header addressing physical bus peers, guarded
// by CRC-8, followed by a soft message addressing logical peers, guarded
// by CRC-16. Soft messages carry register reads and writes. This package
// provides frame parsing and validation, request building, typed register
// decoding against per-model profiles, and a session that drives either a
// request/response exchange or passive eavesdropping over a byte stream.
package geco

import "time"

// Hard layer framing
const (
	StartByte       = 0x69
	HardConst       = 0x84 // 3 bytes on the wire, little-endian
	HardHeaderSize  = 8
	hardCRCCoverage = 7
)

// Soft layer framing
const (
	SoftConst = 0x80
	// SoftOverhead is the fixed soft header plus trailer: to(2) from(2)
	// fnc(1) const(2) count(1) start(2) crc16(2).
	SoftOverhead   = 12
	softHeaderSize = 10
)

// Function codes
const (
	FncReadRequest  = 0x40
	FncReadResponse = 0x50
	FncWrite        = 0x60
	FncWriteAck     = 0x70
)

// RegisterWidth is the number of address units one register occupies.
const RegisterWidth = 2

// Cycle marker: the recurring "read 20 registers from 100" request that
// opens every controller/device exchange cycle on the bus.
const (
	markerRegisterStart = 100
	markerRegisterCount = 20
)

// Default timing and window sizes for a session
const (
	DefaultReadTimeout   = 400 * time.Millisecond
	DefaultMarkerTimeout = 1 * time.Second
	DefaultWindowSize    = 1000
)
