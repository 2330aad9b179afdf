// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueType describes how the bytes of a register are interpreted
type ValueType int

// Register value types
const (
	TypeWord          ValueType = iota // unsigned 16-bit, little-endian
	TypeWordReversed                   // unsigned 16-bit, big-endian
	TypeDoubleWord                     // unsigned 32-bit, little-endian
	TypeTemp                           // signed 16-bit
	TypeTemp10                         // signed 16-bit / 10
	TypeFraction10                     // unsigned 16-bit / 10
	TypeFraction100                    // unsigned 16-bit / 100
	TypeBool                           // non-zero word
	TypeBitmask                        // one bool per named bit
	TypeHourlyProgram                  // bits 0-23 of a double word
	TypeDate                           // yy mm dd (+ day of week)
	TypeTime                           // hh mm ss (+ filler)
)

var typeTags = map[ValueType]string{
	TypeWord:          "word",
	TypeWordReversed:  "rwrd",
	TypeDoubleWord:    "dwrd",
	TypeTemp:          "temp",
	TypeTemp10:        "te10",
	TypeFraction10:    "fl10",
	TypeFraction100:   "f100",
	TypeBool:          "bool",
	TypeBitmask:       "mask",
	TypeHourlyProgram: "tprg",
	TypeDate:          "date",
	TypeTime:          "time",
}

// ParseValueType maps a profile type tag such as "te10" to its ValueType.
func ParseValueType(tag string) (ValueType, error) {
	for t, s := range typeTags {
		if s == tag {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown register type %q", tag)
}

// String returns the profile tag of the type
func (t ValueType) String() string {
	if s, ok := typeTags[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Registers returns how many consecutive registers a value occupies.
func (t ValueType) Registers() int {
	switch t {
	case TypeDoubleWord, TypeHourlyProgram, TypeDate, TypeTime:
		return 2
	}
	return 1
}

// byteSize is the number of bytes read when decoding the type.
func (t ValueType) byteSize() int {
	switch t {
	case TypeDate, TypeTime:
		return 3
	case TypeDoubleWord, TypeHourlyProgram:
		return 4
	}
	return 2
}

// Register describes one entry of a device's register map.
type Register struct {
	Address     uint16
	Name        string
	Type        ValueType
	Bits        []string // TypeBitmask only; "" marks an unused bit
	Description string
}

// Schema is an immutable register map indexed by address and by name.
type Schema struct {
	ordered []*Register
	byAddr  map[uint16]*Register
	byName  map[string]*Register
}

// NewSchema validates regs and builds the lookup tables. Addresses must be
// even and entries spanning two registers must not overlap their neighbour.
func NewSchema(regs []Register) (*Schema, error) {
	s := &Schema{
		byAddr: make(map[uint16]*Register, len(regs)),
		byName: make(map[string]*Register, len(regs)),
	}
	for i := range regs {
		r := regs[i]
		if r.Address%RegisterWidth != 0 {
			return nil, fmt.Errorf("register %q: odd address %d", r.Name, r.Address)
		}
		if _, dup := s.byAddr[r.Address]; dup {
			return nil, fmt.Errorf("register %q: duplicate address %d", r.Name, r.Address)
		}
		names := []string{r.Name}
		if r.Type == TypeBitmask {
			names = r.Bits
			if countNames(r.Bits) == 0 {
				return nil, fmt.Errorf("bitmask at %d has no named bits", r.Address)
			}
			if len(r.Bits) > 16 {
				return nil, fmt.Errorf("bitmask at %d has %d bits (max 16)", r.Address, len(r.Bits))
			}
		} else if r.Name == "" {
			return nil, fmt.Errorf("register at %d has no name", r.Address)
		}
		for _, n := range names {
			if n == "" {
				continue
			}
			if _, dup := s.byName[n]; dup {
				return nil, fmt.Errorf("duplicate register name %q", n)
			}
			s.byName[n] = &r
		}
		s.byAddr[r.Address] = &r
		s.ordered = append(s.ordered, &r)
	}

	sort.Slice(s.ordered, func(i, j int) bool { return s.ordered[i].Address < s.ordered[j].Address })
	for i := 0; i+1 < len(s.ordered); i++ {
		cur, next := s.ordered[i], s.ordered[i+1]
		if int(cur.Address)+cur.Type.Registers()*RegisterWidth > int(next.Address) {
			return nil, fmt.Errorf("register %q at %d overlaps register at %d", cur.Name, cur.Address, next.Address)
		}
	}
	return s, nil
}

func countNames(names []string) int {
	n := 0
	for _, s := range names {
		if s != "" {
			n++
		}
	}
	return n
}

// Registers returns the entries ordered by address
func (s *Schema) Registers() []*Register {
	return s.ordered
}

// At returns the register at addr
func (s *Schema) At(addr uint16) (*Register, bool) {
	r, ok := s.byAddr[addr]
	return r, ok
}

// Lookup resolves a register by name, by bitmask bit name, or by a
// decimal address.
func (s *Schema) Lookup(ref string) (*Register, error) {
	if r, ok := s.byName[ref]; ok {
		return r, nil
	}
	if addr, err := strconv.ParseUint(ref, 10, 16); err == nil {
		if r, ok := s.byAddr[uint16(addr)]; ok {
			return r, nil
		}
	}
	return nil, frameErr(ErrUnknownRegister, "%q", ref)
}

// Value is a decoded register value: one of IntValue, FloatValue,
// BoolValue, DateValue, TimeValue or BoolArray.
type Value interface {
	fmt.Stringer
	isValue()
}

// IntValue holds word, reversed word and double word registers
type IntValue int64

// FloatValue holds temperatures and fixed-point fractions
type FloatValue float64

// BoolValue holds boolean registers and bitmask bits
type BoolValue bool

// DateValue is a controller calendar date
type DateValue struct {
	Year, Month, Day int
}

// TimeValue is a controller wall-clock time
type TimeValue struct {
	Hour, Minute, Second int
}

// BoolArray holds an hourly program, index i being hour i
type BoolArray []bool

func (IntValue) isValue()   {}
func (FloatValue) isValue() {}
func (BoolValue) isValue()  {}
func (DateValue) isValue()  {}
func (TimeValue) isValue()  {}
func (BoolArray) isValue()  {}

func (v IntValue) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v FloatValue) String() string { return strconv.FormatFloat(float64(v), 'f', -1, 64) }
func (v BoolValue) String() string  { return strconv.FormatBool(bool(v)) }

func (v DateValue) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", v.Year, v.Month, v.Day)
}

func (v TimeValue) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", v.Hour, v.Minute, v.Second)
}

// String renders one character per hour, '1' when enabled.
func (v BoolArray) String() string {
	var b strings.Builder
	for _, on := range v {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// MarshalText renders dates as YYYY-MM-DD
func (v DateValue) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// MarshalText renders times as hh:mm:ss
func (v TimeValue) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Reading is one named value decoded from a frame.
type Reading struct {
	Name    string
	Address uint16
	Value   Value
}

// Readings keeps decoded values in register order.
type Readings []Reading

// Get returns the value named name
func (r Readings) Get(name string) (Value, bool) {
	for _, rd := range r {
		if rd.Name == name {
			return rd.Value, true
		}
	}
	return nil, false
}

// Map returns the readings keyed by name
func (r Readings) Map() map[string]Value {
	m := make(map[string]Value, len(r))
	for _, rd := range r {
		m[rd.Name] = rd.Value
	}
	return m
}
