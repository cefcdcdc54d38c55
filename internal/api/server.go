// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes entry resolution, DRM probing and playback URL
// adaptation over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ManuGH/playkit/internal/api/middleware"
	"github.com/ManuGH/playkit/internal/config"
	"github.com/ManuGH/playkit/internal/drm"
	"github.com/ManuGH/playkit/internal/health"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/provider"
	"github.com/ManuGH/playkit/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Prober probes a DASH manifest for DRM information.
type Prober interface {
	Probe(ctx context.Context, location string) (*drm.ProbeResult, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, location string) (*drm.ProbeResult, error)

func (f ProberFunc) Probe(ctx context.Context, location string) (*drm.ProbeResult, error) {
	return f(ctx, location)
}

// Deps holds all dependencies for the API server.
type Deps struct {
	// Config returns the current configuration; it is called per request so
	// reloads take effect without restarting the server.
	Config  func() config.AppConfig
	Entries provider.EntryLoader
	// Prober defaults to drm.Probe with a fetcher built from the DRM config.
	Prober Prober
	// Health defaults to a manager without component checks.
	Health *health.Manager
	Logger *zerolog.Logger
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	logger  zerolog.Logger
	handler http.Handler
}

// NewServer wires the routes and the middleware stack.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("api: config source is required")
	}
	if deps.Entries == nil {
		return nil, errors.New("api: entry loader is required")
	}
	s := &Server{deps: deps, logger: xglog.WithComponent("api")}
	if deps.Logger != nil {
		s.logger = *deps.Logger
	}
	if s.deps.Health == nil {
		s.deps.Health = health.NewManager(version.Version)
	}
	if s.deps.Prober == nil {
		s.deps.Prober = ProberFunc(s.defaultProbe)
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	cfg := s.deps.Config()

	r := chi.NewRouter()
	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{
			EnableSecurityHeaders: true,
			EnableMetrics:         true,
			TracingService:        tracingService(cfg),
			EnableLogging:         true,
			RateLimit:             cfg.API.RateLimit,
			RateWindow:            cfg.API.RateWindow,
		})
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/entries/{entryID}", s.handleGetEntry)
			r.Post("/playback/adapt", s.handleAdapt)
			r.Get("/drm/probe", s.handleProbe)
		})
	})
	return r
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return "playkit-api"
}

func (s *Server) defaultProbe(ctx context.Context, location string) (*drm.ProbeResult, error) {
	cfg := s.deps.Config()
	fetcher := drm.NewMultiFetcher(cfg.DRM.FetchTimeout, cfg.DRM.AllowRemote)
	fetcher.File = drm.ConfinedFileFetcher{Root: cfg.DRM.ManifestRoot}
	return drm.Probe(ctx, location,
		drm.WithFetcher(fetcher),
		drm.WithLogger(s.logger),
	)
}
