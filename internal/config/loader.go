// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, empty when running from ENV only.
func (l *Loader) Path() string {
	return l.configPath
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load parses the file strictly, applies ENV overrides and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if cfg.DRM.ManifestRoot != "" {
		if abs, err := filepath.Abs(cfg.DRM.ManifestRoot); err == nil {
			cfg.DRM.ManifestRoot = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		OVP: OVPConfig{
			BaseURL:    "https://cdnapisec.kaltura.com",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			Backoff:    200 * time.Millisecond,
			RateLimit:  10,
			RateBurst:  20,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     5 * time.Minute,
		},
		DRM: DRMConfig{
			FetchTimeout: 10 * time.Second,
		},
		API: APIConfig{
			ListenAddr:      ":8088",
			RateLimit:       120,
			RateWindow:      time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}

// loadFile loads configuration from a YAML file with strict parsing.
// Unknown fields are rejected.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	if f == nil {
		return nil
	}
	setString(&cfg.LogLevel, f.LogLevel)

	if o := f.OVP; o != nil {
		setString(&cfg.OVP.BaseURL, o.BaseURL)
		setInt(&cfg.OVP.PartnerID, o.PartnerID)
		setString(&cfg.OVP.KS, o.KS)
		setInt(&cfg.OVP.MaxRetries, o.MaxRetries)
		setInt(&cfg.OVP.RateBurst, o.RateBurst)
		setInt(&cfg.OVP.MaxBitrate, o.MaxBitrate)
		if o.RateLimit != nil {
			cfg.OVP.RateLimit = *o.RateLimit
		}
		if err := setDuration(&cfg.OVP.Timeout, o.Timeout, "ovp.timeout"); err != nil {
			return err
		}
		if err := setDuration(&cfg.OVP.Backoff, o.Backoff, "ovp.backoff"); err != nil {
			return err
		}
	}

	if c := f.Cache; c != nil {
		setString(&cfg.Cache.Backend, c.Backend)
		setString(&cfg.Cache.RedisAddr, c.RedisAddr)
		setString(&cfg.Cache.RedisPassword, c.RedisPassword)
		setInt(&cfg.Cache.RedisDB, c.RedisDB)
		if err := setDuration(&cfg.Cache.TTL, c.TTL, "cache.ttl"); err != nil {
			return err
		}
	}

	if p := f.Playback; p != nil {
		setString(&cfg.Playback.ApplicationName, p.ApplicationName)
	}

	if d := f.DRM; d != nil {
		setString(&cfg.DRM.ManifestRoot, d.ManifestRoot)
		if d.AllowRemote != nil {
			cfg.DRM.AllowRemote = *d.AllowRemote
		}
		if err := setDuration(&cfg.DRM.FetchTimeout, d.FetchTimeout, "drm.fetchTimeout"); err != nil {
			return err
		}
	}

	if a := f.API; a != nil {
		setString(&cfg.API.ListenAddr, a.ListenAddr)
		setInt(&cfg.API.RateLimit, a.RateLimit)
		if err := setDuration(&cfg.API.RateWindow, a.RateWindow, "api.rateWindow"); err != nil {
			return err
		}
		if err := setDuration(&cfg.API.ShutdownTimeout, a.ShutdownTimeout, "api.shutdownTimeout"); err != nil {
			return err
		}
	}

	if t := f.Telemetry; t != nil {
		if t.Enabled != nil {
			cfg.Telemetry.Enabled = *t.Enabled
		}
		if t.Insecure != nil {
			cfg.Telemetry.Insecure = *t.Insecure
		}
		if t.SamplingRate != nil {
			cfg.Telemetry.SamplingRate = *t.SamplingRate
		}
		setString(&cfg.Telemetry.Exporter, t.Exporter)
		setString(&cfg.Telemetry.Endpoint, t.Endpoint)
		setString(&cfg.Telemetry.Environment, t.Environment)
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("PLAYKIT_LOG_LEVEL", cfg.LogLevel)

	cfg.OVP.BaseURL = l.envString("PLAYKIT_OVP_BASE_URL", cfg.OVP.BaseURL)
	cfg.OVP.PartnerID = l.envInt("PLAYKIT_OVP_PARTNER_ID", cfg.OVP.PartnerID)
	cfg.OVP.KS = l.envString("PLAYKIT_OVP_KS", cfg.OVP.KS)
	cfg.OVP.Timeout = l.envDuration("PLAYKIT_OVP_TIMEOUT", cfg.OVP.Timeout)
	cfg.OVP.MaxRetries = l.envInt("PLAYKIT_OVP_MAX_RETRIES", cfg.OVP.MaxRetries)
	cfg.OVP.Backoff = l.envDuration("PLAYKIT_OVP_BACKOFF", cfg.OVP.Backoff)
	cfg.OVP.RateLimit = l.envFloat("PLAYKIT_OVP_RATE_LIMIT", cfg.OVP.RateLimit)
	cfg.OVP.RateBurst = l.envInt("PLAYKIT_OVP_RATE_BURST", cfg.OVP.RateBurst)
	cfg.OVP.MaxBitrate = l.envInt("PLAYKIT_OVP_MAX_BITRATE", cfg.OVP.MaxBitrate)

	cfg.Cache.Backend = l.envString("PLAYKIT_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = l.envDuration("PLAYKIT_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = l.envString("PLAYKIT_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = l.envString("PLAYKIT_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = l.envInt("PLAYKIT_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Playback.ApplicationName = l.envString("PLAYKIT_APPLICATION_NAME", cfg.Playback.ApplicationName)

	cfg.DRM.ManifestRoot = l.envString("PLAYKIT_MANIFEST_ROOT", cfg.DRM.ManifestRoot)
	cfg.DRM.FetchTimeout = l.envDuration("PLAYKIT_DRM_FETCH_TIMEOUT", cfg.DRM.FetchTimeout)
	cfg.DRM.AllowRemote = l.envBool("PLAYKIT_DRM_ALLOW_REMOTE", cfg.DRM.AllowRemote)

	cfg.API.ListenAddr = l.envString("PLAYKIT_LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt("PLAYKIT_API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.RateWindow = l.envDuration("PLAYKIT_API_RATE_WINDOW", cfg.API.RateWindow)
	cfg.API.ShutdownTimeout = l.envDuration("PLAYKIT_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)

	cfg.Telemetry.Enabled = l.envBool("PLAYKIT_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("PLAYKIT_OTLP_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("PLAYKIT_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Insecure = l.envBool("PLAYKIT_OTLP_INSECURE", cfg.Telemetry.Insecure)
	cfg.Telemetry.Environment = l.envString("PLAYKIT_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat("PLAYKIT_TRACE_SAMPLING", cfg.Telemetry.SamplingRate)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*v))
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, *v, err)
	}
	*dst = d
	return nil
}
