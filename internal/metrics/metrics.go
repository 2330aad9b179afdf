// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes bus and bridge activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics are the gecostat specific metrics
type AppMetrics struct {
	Frames      *prometheus.CounterVec // labels: fnc
	FrameErrors *prometheus.CounterVec // labels: kind
	Polls       *prometheus.CounterVec // labels: result=ok|error
	Writes      *prometheus.CounterVec // labels: result=ok|error|throttled
	Registers   *prometheus.GaugeVec   // labels: name
}

// NewAppMetrics registers and returns the application metrics
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geco_frames_total",
			Help: "Valid frames seen on the bus by function code.",
		}, []string{"fnc"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geco_frame_errors_total",
			Help: "Frame and exchange errors by kind.",
		}, []string{"kind"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geco_poll_total",
			Help: "Bridge poll cycles by result.",
		}, []string{"result"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geco_write_total",
			Help: "Register writes requested by sinks, by result.",
		}, []string{"result"}),
		Registers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geco_register_value",
			Help: "Last decoded numeric register values.",
		}, []string{"name"}),
	}
	reg.MustRegister(m.Frames, m.FrameErrors, m.Polls, m.Writes, m.Registers)
	return m
}

// ObserveFrame counts a valid frame
func (m *AppMetrics) ObserveFrame(msg *geco.Message) {
	m.Frames.WithLabelValues(geco.FormatFunction(msg.Soft.Function)).Inc()
}

// ObserveError counts err under its kind.
func (m *AppMetrics) ObserveError(err error) {
	m.FrameErrors.WithLabelValues(ErrorKind(err)).Inc()
}

// ObserveReadings updates the register gauges. Dates, times and hourly
// programs have no numeric form and are skipped.
func (m *AppMetrics) ObserveReadings(readings geco.Readings) {
	for _, r := range readings {
		if f, ok := Numeric(r.Value); ok {
			m.Registers.WithLabelValues(r.Name).Set(f)
		}
	}
}

// Numeric returns the gauge value of v, if it has one
func Numeric(v geco.Value) (float64, bool) {
	switch x := v.(type) {
	case geco.IntValue:
		return float64(x), true
	case geco.FloatValue:
		return float64(x), true
	case geco.BoolValue:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// ErrorKind returns a short label for err
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, geco.ErrNoResponse):
		return "no_response"
	case errors.Is(err, geco.ErrMarkerNotFound):
		return "marker_not_found"
	case geco.IsChecksumError(err):
		return "checksum"
	case errors.Is(err, geco.ErrInvalidHardAddress), errors.Is(err, geco.ErrInvalidSoftAddress),
		errors.Is(err, geco.ErrHardAddressCollision):
		return "address"
	case errors.Is(err, geco.ErrSoftLengthMismatch), errors.Is(err, geco.ErrSoftMessageTooShort),
		errors.Is(err, geco.ErrFrameTooShort):
		return "length"
	case errors.Is(err, geco.ErrDecodeOutOfBounds):
		return "decode"
	case errors.Is(err, geco.ErrInvalidStartByte), errors.Is(err, geco.ErrInvalidConstBytes),
		errors.Is(err, geco.ErrInvalidSoftConst), errors.Is(err, geco.ErrStuckConsumption):
		return "framing"
	}
	return "other"
}
