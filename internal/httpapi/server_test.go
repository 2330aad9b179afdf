// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/gecostat/internal/publish"
	"github.com/Thermoquad/gecostat/pkg/geco"
)

func setup(t *testing.T) (*gin.Engine, *publish.Latest) {
	gin.SetMode(gin.TestMode)
	profile, err := geco.LoadProfile("pcwu")
	require.NoError(t, err)
	latest := &publish.Latest{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("geco_poll_total 1\n"))
	})
	return NewRouter(latest, profile, metrics), latest
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := setup(t)

	rec := get(r, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(r, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "geco_poll_total")
}

func TestReadings(t *testing.T) {
	r, latest := setup(t)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/readings").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/readyz").Code)

	require.NoError(t, latest.Publish(context.Background(), publish.Snapshot{
		Device: "pcwu",
		Time:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Readings: geco.Readings{
			{Name: "T1", Address: 128, Value: geco.FloatValue(21.5)},
			{Name: "HeatPumpEnabled", Address: 304, Value: geco.BoolValue(true)},
		},
	}))
	assert.Equal(t, http.StatusOK, get(r, "/readyz").Code)

	rec := get(r, "/api/v1/readings")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Device   string                 `json:"device"`
		Readings map[string]interface{} `json:"readings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pcwu", body.Device)
	assert.Equal(t, 21.5, body.Readings["T1"])
	assert.Equal(t, true, body.Readings["HeatPumpEnabled"])

	rec = get(r, "/api/v1/readings/T1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"value":21.5`)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/readings/T99").Code)
}

func TestRegisters(t *testing.T) {
	r, _ := setup(t)

	rec := get(r, "/api/v1/registers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Device    string `json:"device"`
		Registers []struct {
			Address uint16   `json:"address"`
			Name    string   `json:"name"`
			Type    string   `json:"type"`
			Bits    []string `json:"bits"`
		} `json:"registers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pcwu", body.Device)
	require.NotEmpty(t, body.Registers)
	assert.Equal(t, uint16(120), body.Registers[0].Address)
	assert.Equal(t, "date", body.Registers[0].Type)

	var mask bool
	for _, reg := range body.Registers {
		if reg.Address == 196 {
			mask = true
			assert.Equal(t, "mask", reg.Type)
			assert.Contains(t, reg.Bits, "HeatPumpON")
		}
	}
	assert.True(t, mask)
}
