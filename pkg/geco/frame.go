// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"encoding/binary"
	"time"
)

// Addresses binds the physical (hard) and logical (soft) ids of the two
// bus peers. Controllers and devices ship with 1/1 and 2/2.
type Addresses struct {
	ControllerHard uint8
	ControllerSoft uint16
	DeviceHard     uint8
	DeviceSoft     uint16
}

// DefaultAddresses returns the factory ids of a controller/device pair.
func DefaultAddresses() Addresses {
	return Addresses{
		ControllerHard: 1,
		ControllerSoft: 1,
		DeviceHard:     2,
		DeviceSoft:     2,
	}
}

// Validate checks that the two peers can be told apart on the hard layer.
func (a Addresses) Validate() error {
	if a.ControllerHard == a.DeviceHard {
		return frameErr(ErrInvalidAddresses, "controller and device share hard id %d", a.DeviceHard)
	}
	return nil
}

// softFor returns the logical id bound to a hard id, if any.
func (a Addresses) softFor(hard uint8) (uint16, bool) {
	switch hard {
	case a.ControllerHard:
		return a.ControllerSoft, true
	case a.DeviceHard:
		return a.DeviceSoft, true
	}
	return 0, false
}

// HardHeader is the outer 8-byte header of a frame.
type HardHeader struct {
	StartByte     uint8
	To            uint8
	From          uint8
	ConstBytes    uint32 // 24-bit
	PayloadLength uint8
	CRC8          uint8
	CalcCRC8      uint8 // computed over bytes [0,7)
}

// SoftMessage is the logical message carried in a frame's payload.
type SoftMessage struct {
	To            uint16
	From          uint16
	Function      uint8
	ConstByte     uint16
	RegisterCount uint8
	RegisterStart uint16
	Data          []byte // register values, PayloadLength-12 bytes
	CRC16         uint16
	CalcCRC16     uint16 // computed over all preceding soft bytes
}

// Message is one parsed and validated frame.
type Message struct {
	Hard      HardHeader
	Soft      SoftMessage
	Raw       []byte // hard header and payload of this frame
	Timestamp time.Time
}

// Len returns the number of wire bytes the frame occupies.
func (m *Message) Len() int {
	return HardHeaderSize + int(m.Hard.PayloadLength)
}

// detach gives the message its own copy of the wire bytes so that it
// outlives the buffer it was parsed from.
func (m *Message) detach() {
	raw := append([]byte(nil), m.Raw...)
	off := HardHeaderSize + softHeaderSize
	m.Soft.Data = raw[off : off+len(m.Soft.Data)]
	m.Raw = raw
}

// CarriesRegisters reports whether the message holds device register
// values. Only frames issued by the device qualify: its read responses
// (0x50) and the writes (0x60) it uses to push status to the controller.
// Replies from the controller carry the controller's own registers and do
// not match the device schema.
func (m *Message) CarriesRegisters(ids Addresses) bool {
	if m.Hard.From != ids.DeviceHard {
		return false
	}
	switch m.Soft.Function {
	case FncReadResponse, FncWrite:
		return true
	}
	return false
}

// ParseHardHeader extracts the hard header at the head of buf. The CRC-8
// is always computed so that validation can report a mismatch later.
func ParseHardHeader(buf []byte) (HardHeader, error) {
	if len(buf) < HardHeaderSize {
		return HardHeader{}, frameErr(ErrFrameTooShort, "%d bytes, need %d", len(buf), HardHeaderSize)
	}
	return HardHeader{
		StartByte:     buf[0],
		To:            buf[1],
		From:          buf[2],
		ConstBytes:    uint32(buf[5])<<16 | uint32(buf[4])<<8 | uint32(buf[3]),
		PayloadLength: buf[6],
		CRC8:          buf[7],
		CalcCRC8:      Checksum8(buf[:hardCRCCoverage]),
	}, nil
}

// ValidateHardHeader checks a parsed hard header against the bus ids.
func ValidateHardHeader(h HardHeader, ids Addresses) error {
	if h.StartByte != StartByte {
		return frameErr(ErrInvalidStartByte, "0x%02X", h.StartByte)
	}
	if h.CRC8 != h.CalcCRC8 {
		return frameErr(ErrInvalidHardChecksum, "got 0x%02X, calculated 0x%02X", h.CRC8, h.CalcCRC8)
	}
	if h.ConstBytes != HardConst {
		return frameErr(ErrInvalidConstBytes, "0x%06X", h.ConstBytes)
	}
	if _, ok := ids.softFor(h.From); !ok {
		return frameErr(ErrInvalidHardAddress, "from %d", h.From)
	}
	if _, ok := ids.softFor(h.To); !ok {
		return frameErr(ErrInvalidHardAddress, "to %d", h.To)
	}
	if h.To == h.From {
		return frameErr(ErrHardAddressCollision, "%d", h.To)
	}
	return nil
}

// ParseSoftHeader decodes the soft message in payload, which must be
// exactly declared bytes long.
func ParseSoftHeader(payload []byte, declared int) (SoftMessage, error) {
	if len(payload) != declared {
		return SoftMessage{}, frameErr(ErrSoftLengthMismatch, "%d bytes, header declares %d", len(payload), declared)
	}
	if len(payload) < SoftOverhead {
		return SoftMessage{}, frameErr(ErrSoftMessageTooShort, "%d bytes, need %d", len(payload), SoftOverhead)
	}
	trailer := declared - 2
	return SoftMessage{
		To:            binary.LittleEndian.Uint16(payload[0:]),
		From:          binary.LittleEndian.Uint16(payload[2:]),
		Function:      payload[4],
		ConstByte:     binary.LittleEndian.Uint16(payload[5:]),
		RegisterCount: payload[7],
		RegisterStart: binary.LittleEndian.Uint16(payload[8:]),
		Data:          payload[softHeaderSize:trailer],
		CRC16:         binary.BigEndian.Uint16(payload[trailer:]),
		CalcCRC16:     Checksum16(payload[:trailer]),
	}, nil
}

// ValidateSoftHeader checks a soft message against its hard header: the
// logical addresses must be the ones bound to the hard peers.
func ValidateSoftHeader(h HardHeader, sh SoftMessage, ids Addresses) error {
	if sh.CRC16 != sh.CalcCRC16 {
		return frameErr(ErrInvalidSoftChecksum, "got 0x%04X, calculated 0x%04X", sh.CRC16, sh.CalcCRC16)
	}
	if sh.ConstByte != SoftConst {
		return frameErr(ErrInvalidSoftConst, "0x%04X", sh.ConstByte)
	}
	if soft, ok := ids.softFor(h.From); ok && sh.From != soft {
		return frameErr(ErrInvalidSoftAddress, "from %d, hard peer %d is bound to %d", sh.From, h.From, soft)
	}
	if soft, ok := ids.softFor(h.To); ok && sh.To != soft {
		return frameErr(ErrInvalidSoftAddress, "to %d, hard peer %d is bound to %d", sh.To, h.To, soft)
	}
	return nil
}
