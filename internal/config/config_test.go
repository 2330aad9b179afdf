// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "serial:///dev/ttyUSB0", cfg.Link.URL)
	assert.Equal(t, 38400, cfg.Link.Baud)
	assert.Equal(t, 400*time.Millisecond, cfg.Link.Timeout)
	assert.Equal(t, time.Second, cfg.Link.MarkerTimeout)
	assert.Equal(t, 1000, cfg.Link.Window)
	assert.Equal(t, "pcwu", cfg.Device.Model)
	assert.Equal(t, geco.DefaultAddresses(), cfg.Addresses())
	assert.Equal(t, 15*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 3, cfg.Poll.Attempts)
	assert.Equal(t, ModeDirect, cfg.Poll.Mode)
	assert.Equal(t, ":9108", cfg.HTTP.Addr)
	assert.False(t, cfg.MQTT.Enabled)

	p, err := cfg.Profile()
	require.NoError(t, err)
	assert.Equal(t, "pcwu", p.Name)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gecostat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
link:
  url: tcp://10.0.0.5:8899
  timeout: 600ms
device:
  model: zps
ids:
  device_hard: 3
  device_soft: 3
poll:
  mode: eavesdrop
  interval: 1m
mqtt:
  enabled: true
  topic: solar
`), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://10.0.0.5:8899", cfg.Link.URL)
	assert.Equal(t, 600*time.Millisecond, cfg.Link.Timeout)
	assert.Equal(t, "zps", cfg.Device.Model)
	assert.Equal(t, uint8(3), cfg.IDs.DeviceHard)
	assert.Equal(t, uint16(3), cfg.IDs.DeviceSoft)
	assert.Equal(t, ModeEavesdrop, cfg.Poll.Mode)
	assert.Equal(t, time.Minute, cfg.Poll.Interval)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "solar", cfg.MQTT.Topic)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("GECO_LINK_URL", "ws://bridge.local/serial")
	t.Setenv("GECO_POLL_ATTEMPTS", "5")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "ws://bridge.local/serial", cfg.Link.URL)
	assert.Equal(t, 5, cfg.Poll.Attempts)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"same hard ids", map[string]string{"GECO_IDS_DEVICE_HARD": "1"}},
		{"bad mode", map[string]string{"GECO_POLL_MODE": "shout"}},
		{"no attempts", map[string]string{"GECO_POLL_ATTEMPTS": "0"}},
		{"no window", map[string]string{"GECO_LINK_WINDOW": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(New(), "")
			assert.Error(t, err)
		})
	}
}
