// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue(t *testing.T) {
	s := newTestSchema(t)

	tests := []struct {
		ref   string
		value Value
		want  []byte
	}{
		{"Word", IntValue(12345), []byte{0x39, 0x30}},
		{"Reversed", IntValue(0x0102), []byte{0x01, 0x02}},
		{"Counter", IntValue(0x12345678), []byte{0x78, 0x56, 0x34, 0x12}},
		{"Temp", FloatValue(-10), []byte{0xF6, 0xFF}},
		{"Temp10", FloatValue(50.5), []byte{0xF9, 0x01}},
		{"Temp10", IntValue(-3), []byte{0xE2, 0xFF}},
		{"Flow", FloatValue(12.3), []byte{0x7B, 0x00}},
		{"Power", FloatValue(12.34), []byte{0xD2, 0x04}},
		{"Enabled", BoolValue(true), []byte{0x01, 0x00}},
		{"Enabled", BoolValue(false), []byte{0x00, 0x00}},
		{"Enabled", IntValue(255), []byte{0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.ref+"="+tt.value.String(), func(t *testing.T) {
			_, got, err := s.Encode(tt.ref, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeValue_Program(t *testing.T) {
	s := newTestSchema(t)
	hours := make(BoolArray, HoursPerProgram)
	for i := 16; i < 24; i++ {
		hours[i] = true
	}

	addr, got, err := s.Encode("Program", hours)
	require.NoError(t, err)
	assert.Equal(t, uint16(114), addr)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x00}, got)

	// decoding the encoded bytes gives back the same hours
	readings, err := s.Decode(got, 114, 4, false)
	require.NoError(t, err)
	assert.Equal(t, hours, readings[0].Value)
}

func TestEncodeValue_Errors(t *testing.T) {
	s := newTestSchema(t)

	tests := []struct {
		ref   string
		value Value
		want  error
	}{
		{"Date", DateValue{Year: 2024, Month: 1, Day: 1}, ErrNotWritable},
		{"Time", TimeValue{}, ErrNotWritable},
		{"A", BoolValue(true), ErrNotWritable},
		{"Word", IntValue(-1), ErrInvalidValue},
		{"Word", IntValue(65536), ErrInvalidValue},
		{"Word", FloatValue(1.5), ErrInvalidValue},
		{"Word", BoolArray{}, ErrInvalidValue},
		{"Temp10", FloatValue(5000), ErrInvalidValue},
		{"Flow", FloatValue(-1), ErrInvalidValue},
		{"Enabled", FloatValue(1), ErrInvalidValue},
		{"Program", make(BoolArray, 23), ErrInvalidValue},
		{"Missing", IntValue(1), ErrUnknownRegister},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			_, _, err := s.Encode(tt.ref, tt.value)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseValue(t *testing.T) {
	s := newTestSchema(t)
	reg := func(name string) *Register {
		r, err := s.Lookup(name)
		require.NoError(t, err)
		return r
	}

	v, err := ParseValue(reg("Enabled"), " on ")
	require.NoError(t, err)
	assert.Equal(t, BoolValue(true), v)

	v, err = ParseValue(reg("Enabled"), "0")
	require.NoError(t, err)
	assert.Equal(t, BoolValue(false), v)

	v, err = ParseValue(reg("Word"), "0x10")
	require.NoError(t, err)
	assert.Equal(t, IntValue(16), v)

	v, err = ParseValue(reg("Temp10"), "48.5")
	require.NoError(t, err)
	assert.Equal(t, FloatValue(48.5), v)

	program := strings.Repeat("0", 6) + strings.Repeat("1", 18)
	v, err = ParseValue(reg("Program"), program)
	require.NoError(t, err)
	assert.Equal(t, program, v.String())

	_, err = ParseValue(reg("Enabled"), "maybe")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = ParseValue(reg("Word"), "ten")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = ParseValue(reg("Program"), "0101")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = ParseValue(reg("Program"), strings.Repeat("2", 24))
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = ParseValue(reg("Date"), "2024-01-01")
	assert.ErrorIs(t, err, ErrNotWritable)
}

func TestWords(t *testing.T) {
	assert.Equal(t, []uint16{0x3039}, Words([]byte{0x39, 0x30}))
	assert.Equal(t, []uint16{0x5678, 0x1234}, Words([]byte{0x78, 0x56, 0x34, 0x12}))
	assert.Equal(t, []uint16{0x0201}, Words([]byte{0x01, 0x02}))
	assert.Empty(t, Words(nil))
}
