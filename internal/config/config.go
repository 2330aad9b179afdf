// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads gecostat settings from an optional file, GECO_
// environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

// LinkConfig selects and tunes the bus connection
type LinkConfig struct {
	URL           string        `mapstructure:"url"`
	Baud          int           `mapstructure:"baud"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MarkerTimeout time.Duration `mapstructure:"marker_timeout"`
	Window        int           `mapstructure:"window"`
}

// DeviceConfig names the device profile
type DeviceConfig struct {
	Model       string `mapstructure:"model"`
	ProfileFile string `mapstructure:"profile_file"`
}

// IDsConfig holds the bus ids of both peers
type IDsConfig struct {
	ControllerHard uint8  `mapstructure:"controller_hard"`
	ControllerSoft uint16 `mapstructure:"controller_soft"`
	DeviceHard     uint8  `mapstructure:"device_hard"`
	DeviceSoft     uint16 `mapstructure:"device_soft"`
}

// PollConfig drives the bridge loop
type PollConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	Attempts       int           `mapstructure:"attempts"`
	Mode           string        `mapstructure:"mode"`
	IncludeUnknown bool          `mapstructure:"include_unknown"`
}

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Retain   bool   `mapstructure:"retain"`
}

// RedisConfig configures the Redis sink
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// HTTPConfig configures the status endpoint
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets log level and output
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// WritesConfig throttles register writes requested over MQTT
type WritesConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

// Config is the top-level configuration
type Config struct {
	Link    LinkConfig    `mapstructure:"link"`
	Device  DeviceConfig  `mapstructure:"device"`
	IDs     IDsConfig     `mapstructure:"ids"`
	Poll    PollConfig    `mapstructure:"poll"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Redis   RedisConfig   `mapstructure:"redis"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Writes  WritesConfig  `mapstructure:"writes"`
}

// Poll modes
const (
	ModeDirect    = "direct"
	ModeEavesdrop = "eavesdrop"
)

// New returns a viper instance with defaults and environment overrides
// installed. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// GECO_LINK_URL overrides link.url
	v.SetEnvPrefix("GECO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (if any) into v and decodes the
// result. A missing file is an error only when path was given explicitly.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gecostat")
		v.SetConfigName("gecostat")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("link.url", "serial:///dev/ttyUSB0")
	v.SetDefault("link.baud", 38400)
	v.SetDefault("link.timeout", geco.DefaultReadTimeout)
	v.SetDefault("link.marker_timeout", geco.DefaultMarkerTimeout)
	v.SetDefault("link.window", geco.DefaultWindowSize)

	v.SetDefault("device.model", "pcwu")
	v.SetDefault("device.profile_file", "")

	ids := geco.DefaultAddresses()
	v.SetDefault("ids.controller_hard", ids.ControllerHard)
	v.SetDefault("ids.controller_soft", ids.ControllerSoft)
	v.SetDefault("ids.device_hard", ids.DeviceHard)
	v.SetDefault("ids.device_soft", ids.DeviceSoft)

	v.SetDefault("poll.interval", "15s")
	v.SetDefault("poll.attempts", 3)
	v.SetDefault("poll.mode", ModeDirect)
	v.SetDefault("poll.include_unknown", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "gecostat")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.retain", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "gecostat:readings")

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", ":9108")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.max_size", 10)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("writes.rate", 0.2)
	v.SetDefault("writes.burst", 1)
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if err := c.Addresses().Validate(); err != nil {
		return err
	}
	switch c.Poll.Mode {
	case ModeDirect, ModeEavesdrop:
	default:
		return fmt.Errorf("poll.mode must be %q or %q, got %q", ModeDirect, ModeEavesdrop, c.Poll.Mode)
	}
	if c.Poll.Attempts < 1 {
		return fmt.Errorf("poll.attempts must be at least 1")
	}
	if c.Link.Window < 1 {
		return fmt.Errorf("link.window must be positive")
	}
	return nil
}

// Addresses returns the configured bus ids
func (c *Config) Addresses() geco.Addresses {
	return geco.Addresses{
		ControllerHard: c.IDs.ControllerHard,
		ControllerSoft: c.IDs.ControllerSoft,
		DeviceHard:     c.IDs.DeviceHard,
		DeviceSoft:     c.IDs.DeviceSoft,
	}
}

// Profile loads the device profile, preferring an explicit file.
func (c *Config) Profile() (*geco.Profile, error) {
	if c.Device.ProfileFile != "" {
		return geco.LoadProfileFile(c.Device.ProfileFile)
	}
	return geco.LoadProfile(c.Device.Model)
}
