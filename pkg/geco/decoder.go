// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HoursPerProgram is the number of hourly slots in a time program
const HoursPerProgram = 24

// Decode interprets data as count address units of registers starting at
// start. Registers missing from the schema are skipped unless
// includeUnknown is set, in which case they are emitted as Reg<address>.
func (s *Schema) Decode(data []byte, start uint16, count int, includeUnknown bool) (Readings, error) {
	var out Readings

	skip := 0
	for addr := int(start); addr < int(start)+count; addr += RegisterWidth {
		if skip > 0 {
			skip--
			continue
		}
		if addr > math.MaxUint16 {
			return nil, frameErr(ErrDecodeOutOfBounds, "register address %d past the 16-bit address space", addr)
		}
		off := addr - int(start)
		reg, ok := s.byAddr[uint16(addr)]
		if !ok {
			if !includeUnknown {
				continue
			}
			rd, err := decodeUnknown(data, off, uint16(addr))
			if err != nil {
				return nil, err
			}
			out = append(out, rd)
			continue
		}

		need := reg.Type.byteSize()
		if off+need > len(data) {
			return nil, frameErr(ErrDecodeOutOfBounds, "%s at %d needs %d bytes at offset %d, have %d",
				reg.Type, reg.Address, need, off, len(data))
		}
		out = append(out, decodeRegister(reg, data[off:off+need])...)
		skip = reg.Type.Registers() - 1
	}
	return out, nil
}

func decodeRegister(reg *Register, b []byte) []Reading {
	one := func(v Value) []Reading {
		return []Reading{{Name: reg.Name, Address: reg.Address, Value: v}}
	}

	switch reg.Type {
	case TypeWord:
		return one(IntValue(binary.LittleEndian.Uint16(b)))
	case TypeWordReversed:
		return one(IntValue(binary.BigEndian.Uint16(b)))
	case TypeDoubleWord:
		return one(IntValue(binary.LittleEndian.Uint32(b)))
	case TypeTemp:
		return one(FloatValue(float64(int16(binary.LittleEndian.Uint16(b)))))
	case TypeTemp10:
		return one(FloatValue(float64(int16(binary.LittleEndian.Uint16(b))) / 10.0))
	case TypeFraction10:
		return one(FloatValue(float64(binary.LittleEndian.Uint16(b)) / 10.0))
	case TypeFraction100:
		return one(FloatValue(float64(binary.LittleEndian.Uint16(b)) / 100.0))
	case TypeBool:
		return one(BoolValue(binary.LittleEndian.Uint16(b) != 0))
	case TypeBitmask:
		return decodeBitmask(reg, binary.LittleEndian.Uint16(b))
	case TypeHourlyProgram:
		return one(decodeProgram(binary.LittleEndian.Uint32(b)))
	case TypeDate:
		return one(DateValue{Year: 2000 + int(b[0]), Month: int(b[1]), Day: int(b[2])})
	case TypeTime:
		return one(TimeValue{Hour: int(b[0]), Minute: int(b[1]), Second: int(b[2])})
	}
	return nil
}

// decodeBitmask emits one reading per named bit, bit 0 first.
func decodeBitmask(reg *Register, w uint16) []Reading {
	out := make([]Reading, 0, len(reg.Bits))
	for i, name := range reg.Bits {
		if name == "" {
			continue
		}
		out = append(out, Reading{
			Name:    name,
			Address: reg.Address,
			Value:   BoolValue(w&(1<<uint(i)) != 0),
		})
	}
	return out
}

func decodeProgram(dw uint32) BoolArray {
	hours := make(BoolArray, HoursPerProgram)
	for i := range hours {
		hours[i] = dw&(1<<uint(i)) != 0
	}
	return hours
}

// decodeUnknown reads a word, or a lone byte at the end of the data.
func decodeUnknown(data []byte, off int, addr uint16) (Reading, error) {
	name := fmt.Sprintf("Reg%d", addr)
	switch remaining := len(data) - off; {
	case remaining >= 2:
		return Reading{Name: name, Address: addr, Value: IntValue(binary.LittleEndian.Uint16(data[off:]))}, nil
	case remaining == 1:
		return Reading{Name: name, Address: addr, Value: IntValue(data[off])}, nil
	}
	return Reading{}, frameErr(ErrDecodeOutOfBounds, "register %d at offset %d, have %d bytes", addr, off, len(data))
}
