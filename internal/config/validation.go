// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks the effective configuration and reports every violation.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, ValidationError{Field: field, Reason: reason})
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		add("logLevel", fmt.Sprintf("unknown level %q", cfg.LogLevel))
	}

	if u, err := url.Parse(cfg.OVP.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("ovp.baseUrl", "must be an absolute http(s) URL")
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("ovp.baseUrl", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if cfg.OVP.PartnerID < 0 {
		add("ovp.partnerId", "must not be negative")
	}
	if cfg.OVP.Timeout <= 0 {
		add("ovp.timeout", "must be positive")
	}
	if cfg.OVP.MaxRetries < 0 {
		add("ovp.maxRetries", "must not be negative")
	}
	if cfg.OVP.RateLimit <= 0 {
		add("ovp.rateLimit", "must be positive")
	}
	if cfg.OVP.MaxBitrate < 0 {
		add("ovp.maxBitrate", "must not be negative")
	}

	switch cfg.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if cfg.Cache.RedisAddr == "" {
			add("cache.redisAddr", "required for redis backend")
		}
	default:
		add("cache.backend", fmt.Sprintf("unknown backend %q (memory, redis, none)", cfg.Cache.Backend))
	}
	if cfg.Cache.Backend != CacheNone && cfg.Cache.TTL <= 0 {
		add("cache.ttl", "must be positive")
	}

	if cfg.API.ListenAddr == "" {
		add("api.listenAddr", "must not be empty")
	}
	if cfg.API.RateLimit < 0 {
		add("api.rateLimit", "must not be negative")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Exporter != "grpc" && cfg.Telemetry.Exporter != "http" {
			add("telemetry.exporter", fmt.Sprintf("unsupported exporter %q (grpc, http)", cfg.Telemetry.Exporter))
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			add("telemetry.samplingRate", "must be within [0, 1]")
		}
	}

	return errors.Join(errs...)
}
