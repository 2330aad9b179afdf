// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// FormatFunction returns the human-readable name for a function code
func FormatFunction(fnc uint8) string {
	switch fnc {
	case FncReadRequest:
		return "READ_REQUEST"
	case FncReadResponse:
		return "READ_RESPONSE"
	case FncWrite:
		return "WRITE"
	case FncWriteAck:
		return "WRITE_ACK"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", fnc)
	}
}

// FormatMessage renders both headers of a frame, one line each.
func FormatMessage(m *Message) string {
	h, sh := m.Hard, m.Soft
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (0x%02X) %d -> %d len=%d\n",
		m.Timestamp.Format("15:04:05.000"), FormatFunction(sh.Function), sh.Function,
		h.From, h.To, m.Len())
	fmt.Fprintf(&b, "  hard: start=0x%02X to=%d from=%d const=0x%06X payload=%d crc8=0x%02X\n",
		h.StartByte, h.To, h.From, h.ConstBytes, h.PayloadLength, h.CRC8)
	fmt.Fprintf(&b, "  soft: to=%d from=%d fnc=0x%02X const=0x%04X regs=%d start=%d (0x%04X) crc16=0x%04X\n",
		sh.To, sh.From, sh.Function, sh.ConstByte, sh.RegisterCount, sh.RegisterStart, sh.RegisterStart, sh.CRC16)
	if len(sh.Data) > 0 {
		fmt.Fprintf(&b, "  data: %s\n", hex.EncodeToString(sh.Data))
	}
	return b.String()
}

// FormatReadings renders readings as aligned name/value lines
func FormatReadings(r Readings) string {
	width := 0
	for _, rd := range r {
		if len(rd.Name) > width {
			width = len(rd.Name)
		}
	}
	var b strings.Builder
	for _, rd := range r {
		fmt.Fprintf(&b, "  %4d  %-*s  %s\n", rd.Address, width, rd.Name, rd.Value)
	}
	return b.String()
}
