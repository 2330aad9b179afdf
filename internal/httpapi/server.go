// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpapi serves health, metrics and the latest readings.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/gecostat/internal/config"
	"github.com/Thermoquad/gecostat/internal/publish"
	"github.com/Thermoquad/gecostat/pkg/geco"
)

// Server wraps the gin router in an http.Server
type Server struct {
	srv *http.Server
}

// registerInfo is one row of the register listing
type registerInfo struct {
	Address     uint16   `json:"address"`
	Name        string   `json:"name,omitempty"`
	Type        string   `json:"type"`
	Bits        []string `json:"bits,omitempty"`
	Description string   `json:"description,omitempty"`
}

// NewRouter registers the routes. metricsHandler may be nil.
func NewRouter(latest *publish.Latest, profile *geco.Profile, metricsHandler http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if _, ok := latest.Get(); ok {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	api := r.Group("/api/v1")
	api.GET("/readings", func(c *gin.Context) {
		snap, ok := latest.Get()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings yet"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	api.GET("/readings/:name", func(c *gin.Context) {
		snap, ok := latest.Get()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no readings yet"})
			return
		}
		v, ok := snap.Readings.Get(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown register"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "value": v, "time": snap.Time})
	})
	api.GET("/registers", func(c *gin.Context) {
		regs := profile.Schema.Registers()
		out := make([]registerInfo, 0, len(regs))
		for _, reg := range regs {
			out = append(out, registerInfo{
				Address:     reg.Address,
				Name:        reg.Name,
				Type:        reg.Type.String(),
				Bits:        reg.Bits,
				Description: reg.Description,
			})
		}
		c.JSON(http.StatusOK, gin.H{"device": profile.Name, "registers": out})
	})
	return r
}

// New creates the HTTP server
func New(cfg config.HTTPConfig, latest *publish.Latest, profile *geco.Profile, metricsHandler http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{srv: &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(latest, profile, metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves until Shutdown (blocking)
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
