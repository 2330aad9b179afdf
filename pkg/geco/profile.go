// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var builtinProfiles embed.FS

// Profile holds the per-model constants and register map of a device.
type Profile struct {
	Name        string
	Description string

	StatusStart uint16 // first status register
	StatusCount uint8  // address units covered by one status read
	ConfigStart uint16 // first config register
	MaxAddress  uint16 // last readable register
	MaxCount    uint8  // largest register count per request

	// EnableRegister names the bool register that switches the device on
	// and off. Empty when the model has none.
	EnableRegister string

	Schema *Schema
}

// profileFile is the YAML layout of a profile
type profileFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Status      struct {
		Start uint16 `yaml:"start"`
		Count uint8  `yaml:"count"`
	} `yaml:"status"`
	Config struct {
		Start uint16 `yaml:"start"`
	} `yaml:"config"`
	MaxAddress uint16         `yaml:"max_address"`
	MaxCount   uint8          `yaml:"max_count"`
	Enable     string         `yaml:"enable_register"`
	Registers  []registerFile `yaml:"registers"`
}

type registerFile struct {
	Address     uint16   `yaml:"address"`
	Type        string   `yaml:"type"`
	Name        string   `yaml:"name"`
	Bits        []string `yaml:"bits"`
	Description string   `yaml:"desc"`
}

// LoadProfile returns a built-in profile by model name (pcwu, zps).
func LoadProfile(model string) (*Profile, error) {
	data, err := builtinProfiles.ReadFile("profiles/" + strings.ToLower(model) + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: no built-in profile %q (have %s)", ErrInvalidProfile, model, strings.Join(ProfileNames(), ", "))
	}
	return ParseProfile(data)
}

// LoadProfileFile reads a profile from a YAML file on disk.
func LoadProfileFile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParseProfile(data)
}

// ProfileNames lists the built-in profile models
func ProfileNames() []string {
	entries, _ := builtinProfiles.ReadDir("profiles")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	regs := make([]Register, 0, len(pf.Registers))
	for _, rf := range pf.Registers {
		t, err := ParseValueType(rf.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: register %d: %v", ErrInvalidProfile, rf.Address, err)
		}
		regs = append(regs, Register{
			Address:     rf.Address,
			Name:        rf.Name,
			Type:        t,
			Bits:        rf.Bits,
			Description: rf.Description,
		})
	}
	schema, err := NewSchema(regs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, pf.Name, err)
	}

	p := &Profile{
		Name:        pf.Name,
		Description: pf.Description,
		StatusStart: pf.Status.Start,
		StatusCount: pf.Status.Count,
		ConfigStart: pf.Config.Start,
		MaxAddress:  pf.MaxAddress,
		MaxCount:    pf.MaxCount,
		Schema:      schema,

		EnableRegister: pf.Enable,
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, pf.Name, err)
	}
	return p, nil
}

func (p *Profile) validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("missing name")
	case p.MaxCount == 0 || p.MaxCount%RegisterWidth != 0:
		return fmt.Errorf("max_count %d must be even and non-zero", p.MaxCount)
	case p.StatusCount == 0 || p.StatusCount > p.MaxCount:
		return fmt.Errorf("status count %d must be within 1..%d", p.StatusCount, p.MaxCount)
	case p.ConfigStart > p.MaxAddress:
		return fmt.Errorf("config start %d beyond max address %d", p.ConfigStart, p.MaxAddress)
	case p.StatusStart%RegisterWidth != 0 || p.ConfigStart%RegisterWidth != 0:
		return fmt.Errorf("status and config starts must be even")
	}
	if p.EnableRegister != "" {
		reg, err := p.Schema.Lookup(p.EnableRegister)
		if err != nil {
			return err
		}
		if reg.Type != TypeBool {
			return fmt.Errorf("enable register %s is %s, want bool", reg.Name, reg.Type)
		}
	}
	return nil
}

// ReadBlock is the geometry of one read request.
type ReadBlock struct {
	Start uint16
	Count uint8
}

// StatusBlock returns the read covering the status registers
func (p *Profile) StatusBlock() ReadBlock {
	return ReadBlock{Start: p.StatusStart, Count: p.StatusCount}
}

// ConfigBlocks splits the config range [ConfigStart, MaxAddress] into
// requests of at most MaxCount address units each.
func (p *Profile) ConfigBlocks() []ReadBlock {
	var blocks []ReadBlock
	end := int(p.MaxAddress) + RegisterWidth
	for start := int(p.ConfigStart); start < end; {
		n := end - start
		if n > int(p.MaxCount) {
			n = int(p.MaxCount)
		}
		blocks = append(blocks, ReadBlock{Start: uint16(start), Count: uint8(n)})
		start += n
	}
	return blocks
}
