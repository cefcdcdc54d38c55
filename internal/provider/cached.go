// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuGH/playkit/internal/cache"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playkit_provider_cache_lookups_total",
		Help: "Entry cache lookups by result (hit, miss, shared)",
	}, []string{"result"})
)

// cachedEntry is the wire form of a cached entry. Duration is kept in ms
// since MediaEntry does not serialize it.
type cachedEntry struct {
	Entry      *media.MediaEntry `json:"entry"`
	DurationMs int64             `json:"durationMs"`
}

// defaultLoadTimeout bounds a shared upstream load once it is detached from
// the caller that started it.
const defaultLoadTimeout = 30 * time.Second

// CachedProvider decorates an EntryLoader with a TTL cache. Entries are cached
// per partner and session, so a session only sees entries it loaded itself.
// Concurrent loads of the same entry share one upstream request; failures are
// not cached.
type CachedProvider struct {
	next        EntryLoader
	cache       cache.Cache
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
	logger      zerolog.Logger
}

// CachedOption configures a CachedProvider.
type CachedOption func(*CachedProvider)

// WithLoadTimeout bounds shared upstream loads. Non-positive values keep the default.
func WithLoadTimeout(d time.Duration) CachedOption {
	return func(c *CachedProvider) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// NewCachedProvider wraps next. A nil cache disables caching but keeps request coalescing.
func NewCachedProvider(next EntryLoader, c cache.Cache, ttl time.Duration, opts ...CachedOption) *CachedProvider {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	p := &CachedProvider{
		next:        next,
		cache:       c,
		ttl:         ttl,
		loadTimeout: defaultLoadTimeout,
		logger:      xglog.WithComponent("provider.cache"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// cacheKey scopes entries to the partner and a digest of the session token.
// The token itself never reaches the cache backend.
func cacheKey(session SessionProvider, entryID string) string {
	sum := sha256.Sum256([]byte(session.KS()))
	return fmt.Sprintf("entry:%d:%s:%s", session.PartnerID(), hex.EncodeToString(sum[:8]), entryID)
}

// LoadEntry returns the cached entry or loads it through the wrapped loader.
// A caller that gives up stops waiting without failing the other callers
// sharing the same load.
func (c *CachedProvider) LoadEntry(ctx context.Context, session SessionProvider, entryID string) (*media.MediaEntry, error) {
	if err := validate(session, entryID); err != nil {
		return nil, err
	}
	key := cacheKey(session, entryID)

	if raw, ok := c.cache.Get(ctx, key); ok {
		entry, err := decodeEntry(raw)
		if err == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return entry, nil
		}
		c.logger.Warn().Err(err).Str(xglog.FieldEntryID, entryID).Msg("dropping undecodable cache value")
		c.cache.Delete(ctx, key)
	}
	cacheLookups.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		entry, err := c.next.LoadEntry(loadCtx, session, entryID)
		if err != nil {
			return nil, err
		}
		if raw, err := encodeEntry(entry); err == nil {
			c.cache.Set(loadCtx, key, raw, c.ttl)
		}
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			cacheLookups.WithLabelValues("shared").Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneEntry(res.Val.(*media.MediaEntry)), nil
	}
}

// Invalidate removes the entry cached for session.
func (c *CachedProvider) Invalidate(ctx context.Context, session SessionProvider, entryID string) {
	c.cache.Delete(ctx, cacheKey(session, entryID))
}

func encodeEntry(e *media.MediaEntry) ([]byte, error) {
	return json.Marshal(cachedEntry{Entry: e, DurationMs: e.DurationMs()})
}

func decodeEntry(raw []byte) (*media.MediaEntry, error) {
	var ce cachedEntry
	if err := json.Unmarshal(raw, &ce); err != nil {
		return nil, err
	}
	if ce.Entry == nil {
		return nil, fmt.Errorf("cached value has no entry")
	}
	ce.Entry.Duration = time.Duration(ce.DurationMs) * time.Millisecond
	return ce.Entry, nil
}

// cloneEntry keeps callers sharing a singleflight result from aliasing each other's sources.
func cloneEntry(e *media.MediaEntry) *media.MediaEntry {
	out := *e
	out.Sources = make([]media.MediaSource, len(e.Sources))
	for i, src := range e.Sources {
		src.DRM = append([]media.DRMParams(nil), src.DRM...)
		out.Sources[i] = src
	}
	return &out
}
