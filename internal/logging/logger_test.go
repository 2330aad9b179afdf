// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/gecostat/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("bogus")
	assert.ErrorContains(t, err, "bogus")
}

func TestInitLogger_Errors(t *testing.T) {
	_, err := InitLogger(config.LoggingConfig{Level: "loud"})
	assert.ErrorContains(t, err, "log level")

	_, err = InitLogger(config.LoggingConfig{Format: "xml"})
	assert.ErrorContains(t, err, "log format")

	// a regular file where the log directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err = InitLogger(config.LoggingConfig{File: config.LumberjackConfig{Filename: filepath.Join(blocker, "gecostat.log")}})
	assert.ErrorContains(t, err, "log directory")
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("frame", zap.Uint8("fnc", 0x50))
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "frame", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(0x50), entry["fnc"])
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gecostat.log")
	var console bytes.Buffer
	log, err := newLogger(config.LoggingConfig{
		Level:  "debug",
		Format: "console",
		File:   config.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}, &console)
	require.NoError(t, err)

	log.Debug("poll done")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll done")
	assert.Contains(t, console.String(), "poll done")
}
