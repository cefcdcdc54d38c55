// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the playkit runtime configuration from defaults,
// a strict YAML file and PLAYKIT_* environment overrides.
package config

import "time"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// AppConfig is the effective, validated runtime configuration.
type AppConfig struct {
	Version   string
	LogLevel  string
	OVP       OVPConfig
	Cache     CacheConfig
	Playback  PlaybackConfig
	DRM       DRMConfig
	API       APIConfig
	Telemetry TelemetryConfig
}

// OVPConfig configures the OVP backend and the session used against it.
type OVPConfig struct {
	BaseURL    string
	PartnerID  int
	KS         string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	RateLimit  float64
	RateBurst  int
	// MaxBitrate limits flavor selection in kbps; 0 disables the limit.
	MaxBitrate int
}

// CacheConfig configures the media entry cache.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// PlaybackConfig configures the playback request adapter.
type PlaybackConfig struct {
	ApplicationName string
}

// DRMConfig configures the DASH DRM probe.
type DRMConfig struct {
	// ManifestRoot confines local manifest paths served through the API.
	ManifestRoot string
	FetchTimeout time.Duration
	AllowRemote  bool
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr      string
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	Insecure     bool
	Environment  string
	SamplingRate float64
}

// FileConfig mirrors the YAML file layout. Pointer fields distinguish
// "unset" from zero values so that only present keys override defaults.
type FileConfig struct {
	LogLevel  *string             `yaml:"logLevel"`
	OVP       *FileOVPConfig      `yaml:"ovp"`
	Cache     *FileCacheConfig    `yaml:"cache"`
	Playback  *FilePlaybackConfig `yaml:"playback"`
	DRM       *FileDRMConfig      `yaml:"drm"`
	API       *FileAPIConfig      `yaml:"api"`
	Telemetry *FileTelemetry      `yaml:"telemetry"`
}

type FileOVPConfig struct {
	BaseURL    *string  `yaml:"baseUrl"`
	PartnerID  *int     `yaml:"partnerId"`
	KS         *string  `yaml:"ks"`
	Timeout    *string  `yaml:"timeout"`
	MaxRetries *int     `yaml:"maxRetries"`
	Backoff    *string  `yaml:"backoff"`
	RateLimit  *float64 `yaml:"rateLimit"`
	RateBurst  *int     `yaml:"rateBurst"`
	MaxBitrate *int     `yaml:"maxBitrate"`
}

type FileCacheConfig struct {
	Backend       *string `yaml:"backend"`
	TTL           *string `yaml:"ttl"`
	RedisAddr     *string `yaml:"redisAddr"`
	RedisPassword *string `yaml:"redisPassword"`
	RedisDB       *int    `yaml:"redisDb"`
}

type FilePlaybackConfig struct {
	ApplicationName *string `yaml:"applicationName"`
}

type FileDRMConfig struct {
	ManifestRoot *string `yaml:"manifestRoot"`
	FetchTimeout *string `yaml:"fetchTimeout"`
	AllowRemote  *bool   `yaml:"allowRemote"`
}

type FileAPIConfig struct {
	ListenAddr      *string `yaml:"listenAddr"`
	RateLimit       *int    `yaml:"rateLimit"`
	RateWindow      *string `yaml:"rateWindow"`
	ShutdownTimeout *string `yaml:"shutdownTimeout"`
}

type FileTelemetry struct {
	Enabled      *bool    `yaml:"enabled"`
	Exporter     *string  `yaml:"exporter"`
	Endpoint     *string  `yaml:"endpoint"`
	Insecure     *bool    `yaml:"insecure"`
	Environment  *string  `yaml:"environment"`
	SamplingRate *float64 `yaml:"samplingRate"`
}
