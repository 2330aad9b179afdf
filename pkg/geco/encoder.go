// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxWriteValues is the most words one write frame can carry.
const MaxWriteValues = (math.MaxUint8 - SoftOverhead) / RegisterWidth

// BuildReadRequest creates a controller-to-device frame asking for count
// address units starting at register start.
func BuildReadRequest(ids Addresses, start uint16, count uint8) []byte {
	return buildFrame(ids, FncReadRequest, start, count, nil)
}

// BuildWriteRequest creates a controller-to-device frame writing values,
// one 16-bit word per register, starting at register start.
func BuildWriteRequest(ids Addresses, start uint16, values []uint16) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("write request needs at least one value")
	}
	count := len(values) * RegisterWidth
	if SoftOverhead+count > math.MaxUint8 {
		return nil, fmt.Errorf("write request too large: %d values (max %d)", len(values), MaxWriteValues)
	}
	data := make([]byte, 0, count)
	for _, v := range values {
		data = binary.LittleEndian.AppendUint16(data, v)
	}
	return buildFrame(ids, FncWrite, start, uint8(count), data), nil
}

// CycleMarker returns the bytes that open every exchange cycle on the bus:
// the hard header and soft header of a "read 20 registers from 100"
// request, without its CRC-16 trailer.
func CycleMarker(ids Addresses) []byte {
	frame := BuildReadRequest(ids, markerRegisterStart, markerRegisterCount)
	return frame[:len(frame)-2]
}

// buildFrame assembles hard header, soft header, data and both checksums.
// Multi-byte fields are little-endian; the CRC-16 trailer is big-endian.
func buildFrame(ids Addresses, fnc uint8, start uint16, count uint8, data []byte) []byte {
	payload := make([]byte, 0, SoftOverhead+len(data))
	payload = binary.LittleEndian.AppendUint16(payload, ids.DeviceSoft)
	payload = binary.LittleEndian.AppendUint16(payload, ids.ControllerSoft)
	payload = append(payload, fnc)
	payload = binary.LittleEndian.AppendUint16(payload, SoftConst)
	payload = append(payload, count)
	payload = binary.LittleEndian.AppendUint16(payload, start)
	payload = append(payload, data...)
	payload = binary.BigEndian.AppendUint16(payload, Checksum16(payload))

	frame := make([]byte, 0, HardHeaderSize+len(payload))
	frame = append(frame, StartByte, ids.DeviceHard, ids.ControllerHard)
	frame = append(frame, HardConst, 0x00, 0x00)
	frame = append(frame, uint8(len(payload)))
	frame = append(frame, Checksum8(frame))
	return append(frame, payload...)
}
