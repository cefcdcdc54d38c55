// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package provider resolves OVP entries into playable media entries.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/media"
	"github.com/ManuGH/playkit/internal/ovp"
	"github.com/ManuGH/playkit/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EntryInfoFetcher issues the chained entry-info request. *ovp.Client implements it.
type EntryInfoFetcher interface {
	EntryInfo(ctx context.Context, ks, entryID string) (*ovp.EntryInfo, error)
}

// EntryLoader loads a media entry for a session.
type EntryLoader interface {
	LoadEntry(ctx context.Context, session SessionProvider, entryID string) (*media.MediaEntry, error)
}

// Result is handed to LoadAsync completions.
type Result struct {
	Entry *media.MediaEntry
	Err   error
}

// OVPProvider resolves a single entry against an OVP backend.
type OVPProvider struct {
	client     EntryInfoFetcher
	session    SessionProvider
	entryID    string
	maxBitrate int
	logger     zerolog.Logger
}

// Option configures an OVPProvider.
type Option func(*OVPProvider)

// WithSession sets the session used for loads.
func WithSession(s SessionProvider) Option {
	return func(p *OVPProvider) { p.session = s }
}

// WithEntryID sets the entry Load resolves.
func WithEntryID(id string) Option {
	return func(p *OVPProvider) { p.entryID = id }
}

// WithMaxBitrate limits flavors to the given bitrate in kbps.
func WithMaxBitrate(kbps int) Option {
	return func(p *OVPProvider) { p.maxBitrate = kbps }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *OVPProvider) { p.logger = l }
}

// NewOVPProvider creates a provider backed by client.
func NewOVPProvider(client EntryInfoFetcher, opts ...Option) *OVPProvider {
	p := &OVPProvider{
		client: client,
		logger: xglog.WithComponent("provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load resolves the configured entry with the configured session.
func (p *OVPProvider) Load(ctx context.Context) (*media.MediaEntry, error) {
	return p.LoadEntry(ctx, p.session, p.entryID)
}

// LoadAsync runs Load in the background and passes the outcome to completion.
// The returned channel is closed once completion has returned.
func (p *OVPProvider) LoadAsync(ctx context.Context, completion func(Result)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		entry, err := p.Load(ctx)
		if completion != nil {
			completion(Result{Entry: entry, Err: err})
		}
	}()
	return done
}

// LoadEntry resolves entryID using session.
func (p *OVPProvider) LoadEntry(ctx context.Context, session SessionProvider, entryID string) (*media.MediaEntry, error) {
	if err := validate(session, entryID); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer("playkit.provider").Start(ctx, "provider.load")
	defer span.End()
	span.SetAttributes(telemetry.EntryAttributes(entryID, session.PartnerID())...)

	logger := xglog.WithContext(ctx, p.logger).With().
		Str(xglog.FieldEntryID, entryID).
		Int(xglog.FieldPartnerID, session.PartnerID()).
		Logger()

	entry, err := p.load(ctx, session, entryID, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str(xglog.FieldEvent, "provider.load_failed").Msg("entry load failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int(xglog.FieldSources, len(entry.Sources)))
	logger.Debug().
		Str(xglog.FieldEvent, "provider.loaded").
		Int(xglog.FieldSources, len(entry.Sources)).
		Dur("duration", entry.Duration).
		Msg("entry resolved")
	return entry, nil
}

func (p *OVPProvider) load(ctx context.Context, session SessionProvider, entryID string, logger zerolog.Logger) (*media.MediaEntry, error) {
	if p.client == nil {
		return nil, fmt.Errorf("%w: no OVP client configured", ovp.ErrLoad)
	}

	info, err := p.client.EntryInfo(ctx, session.KS(), entryID)
	if err != nil {
		if errors.Is(err, ovp.ErrBadResponse) {
			return nil, fmt.Errorf("%w: failed parsing remote response: %w", ovp.ErrLoad, err)
		}
		return nil, fmt.Errorf("%w: %w", ovp.ErrLoad, err)
	}

	if info.ListErr != nil {
		return nil, fmt.Errorf("%w: baseEntry/list request failed: %w", ovp.ErrLoad, info.ListErr)
	}
	if info.List == nil || len(info.List.Objects) == 0 {
		return nil, fmt.Errorf("%w: %s", ovp.ErrNotFound, entryID)
	}
	if info.ContextErr != nil {
		return nil, fmt.Errorf("%w: baseEntry/getContextData request failed: %w", ovp.ErrLoad, info.ContextErr)
	}

	if info.Context.Restricted() {
		logger.Warn().Str(xglog.FieldEvent, "provider.restricted").Msg("entry playback is restricted by access control")
	}

	entry := BuildMediaEntry(&info.List.Objects[0], info.Context, p.maxBitrate)
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ovp.ErrLoad, err)
	}
	return entry, nil
}

func validate(session SessionProvider, entryID string) error {
	if session == nil || strings.TrimSpace(session.KS()) == "" {
		return fmt.Errorf("%w: session provider should provide a valid KS token", ovp.ErrBadRequest)
	}
	if strings.TrimSpace(entryID) == "" {
		return fmt.Errorf("%w: missing required parameters, entryId", ovp.ErrBadRequest)
	}
	return nil
}
