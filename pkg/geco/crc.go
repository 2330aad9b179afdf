// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"github.com/sigurn/crc16"
	"github.com/sigurn/crc8"
)

// CRC-8 with polynomial 0xD5, zero init, MSB first (CRC-8/DVB-S2).
var crc8Table = crc8.MakeTable(crc8.Params{
	Poly:   0xD5,
	Init:   0x00,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xBC,
	Name:   "CRC-8/DVB-S2",
})

// CRC-16 with polynomial 0x1021, zero init, MSB first (CRC-16/XMODEM).
var crc16Table = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum8 computes the hard header checksum of data.
func Checksum8(data []byte) uint8 {
	return crc8.Checksum(data, crc8Table)
}

// Checksum16 computes the soft message checksum of data.
func Checksum16(data []byte) uint16 {
	return crc16.Checksum(data, crc16Table)
}
