// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media holds the playable media model produced by the OVP provider.
package media

import (
	"errors"
	"fmt"
	"time"
)

// MediaEntry is a playable item: identity, duration and its ordered sources.
type MediaEntry struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Duration  time.Duration `json:"-"`
	MediaType string        `json:"mediaType,omitempty"`
	Sources   []MediaSource `json:"sources"`
}

// DurationMs is the entry duration in milliseconds, as reported upstream.
func (e *MediaEntry) DurationMs() int64 {
	return e.Duration.Milliseconds()
}

// MediaSource is one playable rendition of an entry.
type MediaSource struct {
	ID     string      `json:"id"`
	URL    string      `json:"url"`
	Format MediaFormat `json:"format"`
	DRM    []DRMParams `json:"drm,omitempty"`
}

// Protected reports whether the source needs a license to play.
func (s MediaSource) Protected() bool {
	return len(s.DRM) > 0
}

// DRMParams is the license information for one DRM scheme of a source.
type DRMParams struct {
	LicenseURL string    `json:"licenseUrl"`
	Scheme     DRMScheme `json:"scheme"`
}

// ErrInvalidEntry is returned by Validate.
var ErrInvalidEntry = errors.New("invalid media entry")

// Validate checks that every source carries a unique, non-empty ID.
func (e *MediaEntry) Validate() error {
	seen := make(map[string]struct{}, len(e.Sources))
	for i, src := range e.Sources {
		if src.ID == "" {
			return fmt.Errorf("%w: source %d has no id", ErrInvalidEntry, i)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("%w: duplicate source id %q", ErrInvalidEntry, src.ID)
		}
		seen[src.ID] = struct{}{}
	}
	return nil
}

// SourceByID returns the source with the given ID.
func (e *MediaEntry) SourceByID(id string) (MediaSource, bool) {
	for _, src := range e.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return MediaSource{}, false
}
