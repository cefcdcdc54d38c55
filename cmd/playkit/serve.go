// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/playkit/internal/api"
	"github.com/ManuGH/playkit/internal/config"
	"github.com/ManuGH/playkit/internal/health"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	loader, cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := xglog.WithComponent("daemon")
	holder := config.NewHolder(cfg, loader)

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "playkit",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	entryCache, closer, err := newEntryCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	checks := health.NewManager(cfg.Version)
	if pinger, ok := entryCache.(health.Pinger); ok {
		checks.RegisterChecker(health.PingChecker("cache", pinger, false))
	}

	srv, err := api.NewServer(api.Deps{
		Config:  holder.Get,
		Entries: newEntryLoader(cfg, entryCache),
		Health:  checks,
	})
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	updates := make(chan config.AppConfig, 1)
	holder.RegisterListener(updates)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return holder.Watch(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case next := <-updates:
				if err := xglog.SetLevel(next.LogLevel); err != nil {
					logger.Warn().Err(err).Str("level", next.LogLevel).Msg("ignoring invalid log level")
				}
			}
		}
	})
	g.Go(func() error {
		logger.Info().Str(xglog.FieldEvent, "server.start").Str("addr", httpSrv.Addr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), holder.Get().API.ShutdownTimeout)
		defer cancel()
		logger.Info().Str(xglog.FieldEvent, "server.shutdown").Msg("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
