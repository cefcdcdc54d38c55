// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ManuGH/playkit/internal/cache"
	"github.com/ManuGH/playkit/internal/config"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/ovp"
	"github.com/ManuGH/playkit/internal/provider"
	"golang.org/x/time/rate"
)

const memoryCacheJanitor = time.Minute

func newOVPClient(cfg config.OVPConfig) *ovp.Client {
	return ovp.NewClient(cfg.BaseURL, ovp.Options{
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		Backoff:        cfg.Backoff,
		RateLimit:      rate.Limit(cfg.RateLimit),
		RateLimitBurst: cfg.RateBurst,
	})
}

func sessionFrom(cfg config.OVPConfig) provider.StaticSession {
	return provider.StaticSession{URL: cfg.BaseURL, Session: cfg.KS, Partner: cfg.PartnerID}
}

// newEntryCache builds the configured cache backend. The returned closer
// releases background resources and connections.
func newEntryCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, io.Closer, error) {
	logger := xglog.WithComponent("cache")
	switch cfg.Backend {
	case config.CacheNone:
		return cache.NewNoOpCache(), nopCloser{}, nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return rc, rc, nil
	case config.CacheMemory, "":
		mc := cache.NewMemoryCache(memoryCacheJanitor)
		return mc, closerFunc(func() error { mc.Stop(); return nil }), nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// newEntryLoader wires the OVP provider behind the entry cache.
func newEntryLoader(cfg config.AppConfig, c cache.Cache) provider.EntryLoader {
	base := provider.NewOVPProvider(newOVPClient(cfg.OVP),
		provider.WithMaxBitrate(cfg.OVP.MaxBitrate),
	)
	return provider.NewCachedProvider(base, c, cfg.Cache.TTL, provider.WithLoadTimeout(cfg.OVP.Timeout))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
