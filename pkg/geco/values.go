// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// Encode resolves ref (name or address) and encodes v as the register's
// wire bytes, little-endian unless the type says otherwise.
func (s *Schema) Encode(ref string, v Value) (uint16, []byte, error) {
	reg, err := s.Lookup(ref)
	if err != nil {
		return 0, nil, err
	}
	b, err := EncodeValue(reg, v)
	if err != nil {
		return 0, nil, err
	}
	return reg.Address, b, nil
}

// EncodeValue converts v to the wire bytes of reg.
func EncodeValue(reg *Register, v Value) ([]byte, error) {
	switch reg.Type {
	case TypeWord, TypeWordReversed:
		n, err := integral(reg, v, 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		if reg.Type == TypeWordReversed {
			return binary.BigEndian.AppendUint16(nil, uint16(n)), nil
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(n)), nil

	case TypeDoubleWord:
		n, err := integral(reg, v, 0, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(nil, uint32(n)), nil

	case TypeTemp, TypeTemp10:
		n, err := scaled(reg, v, divisor(reg.Type), math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(int16(n))), nil

	case TypeFraction10, TypeFraction100:
		n, err := scaled(reg, v, divisor(reg.Type), 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(n)), nil

	case TypeBool:
		var on bool
		switch x := v.(type) {
		case BoolValue:
			on = bool(x)
		case IntValue:
			on = x != 0
		default:
			return nil, frameErr(ErrInvalidValue, "%s expects a boolean, got %T", reg.Name, v)
		}
		if on {
			return []byte{0x01, 0x00}, nil
		}
		return []byte{0x00, 0x00}, nil

	case TypeHourlyProgram:
		hours, ok := v.(BoolArray)
		if !ok || len(hours) != HoursPerProgram {
			return nil, frameErr(ErrInvalidValue, "%s expects %d hourly flags", reg.Name, HoursPerProgram)
		}
		var dw uint32
		for i, on := range hours {
			if on {
				dw |= 1 << uint(i)
			}
		}
		return binary.LittleEndian.AppendUint32(nil, dw), nil
	}
	return nil, frameErr(ErrNotWritable, "%s (%s)", reg.Name, reg.Type)
}

func divisor(t ValueType) float64 {
	switch t {
	case TypeTemp10, TypeFraction10:
		return 10
	case TypeFraction100:
		return 100
	}
	return 1
}

func integral(reg *Register, v Value, min, max int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case IntValue:
		n = int64(x)
	case BoolValue:
		if x {
			n = 1
		}
	case FloatValue:
		if float64(x) != math.Trunc(float64(x)) {
			return 0, frameErr(ErrInvalidValue, "%s expects an integer, got %v", reg.Name, float64(x))
		}
		n = int64(x)
	default:
		return 0, frameErr(ErrInvalidValue, "%s expects a number, got %T", reg.Name, v)
	}
	if n < min || n > max {
		return 0, frameErr(ErrInvalidValue, "%s: %d out of range [%d, %d]", reg.Name, n, min, max)
	}
	return n, nil
}

func scaled(reg *Register, v Value, div float64, min, max int64) (int64, error) {
	var f float64
	switch x := v.(type) {
	case FloatValue:
		f = float64(x)
	case IntValue:
		f = float64(x)
	default:
		return 0, frameErr(ErrInvalidValue, "%s expects a number, got %T", reg.Name, v)
	}
	n := int64(math.Round(f * div))
	if n < min || n > max {
		return 0, frameErr(ErrInvalidValue, "%s: %v out of range", reg.Name, f)
	}
	return n, nil
}

// ParseValue converts user text (CLI argument, MQTT payload) to a value
// suitable for reg. Hourly programs take 24 characters of '0'/'1'.
func ParseValue(reg *Register, text string) (Value, error) {
	text = strings.TrimSpace(text)
	switch reg.Type {
	case TypeBool:
		switch strings.ToLower(text) {
		case "1", "true", "on", "yes":
			return BoolValue(true), nil
		case "0", "false", "off", "no":
			return BoolValue(false), nil
		}
		return nil, frameErr(ErrInvalidValue, "%s: %q is not a boolean", reg.Name, text)

	case TypeWord, TypeWordReversed, TypeDoubleWord:
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return nil, frameErr(ErrInvalidValue, "%s: %v", reg.Name, err)
		}
		return IntValue(n), nil

	case TypeTemp, TypeTemp10, TypeFraction10, TypeFraction100:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, frameErr(ErrInvalidValue, "%s: %v", reg.Name, err)
		}
		return FloatValue(f), nil

	case TypeHourlyProgram:
		if len(text) != HoursPerProgram {
			return nil, frameErr(ErrInvalidValue, "%s: need %d characters of 0/1, got %d", reg.Name, HoursPerProgram, len(text))
		}
		hours := make(BoolArray, HoursPerProgram)
		for i, c := range text {
			switch c {
			case '1':
				hours[i] = true
			case '0':
			default:
				return nil, frameErr(ErrInvalidValue, "%s: %q at hour %d", reg.Name, c, i)
			}
		}
		return hours, nil
	}
	return nil, frameErr(ErrNotWritable, "%s (%s)", reg.Name, reg.Type)
}

// Words splits little-endian wire bytes into register words.
func Words(b []byte) []uint16 {
	words := make([]uint16, 0, (len(b)+1)/2)
	for i := 0; i+1 < len(b); i += 2 {
		words = append(words, binary.LittleEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		words = append(words, uint16(b[len(b)-1]))
	}
	return words
}
