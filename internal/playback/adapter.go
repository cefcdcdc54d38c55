// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playback decorates playback requests with session and analytics
// parameters understood by the OVP delivery layer.
package playback

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/ManuGH/playkit/internal/version"
)

const playManifestSegment = "/playManifest/"

// RequestParams is a content request: the URL and the headers sent with it.
type RequestParams struct {
	URL     *url.URL
	Headers http.Header
}

// Adapter rewrites content requests before they are issued.
type Adapter interface {
	Adapt(RequestParams) RequestParams
	UpdateParams(Player)
	ApplicationName() string
}

// Player is the part of a player the adapter depends on.
type Player interface {
	SessionID() string
	Settings() *Settings
}

// Settings holds per-player request configuration.
type Settings struct {
	mu      sync.RWMutex
	adapter Adapter
}

// ContentRequestAdapter returns the installed adapter, or nil.
func (s *Settings) ContentRequestAdapter() Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapter
}

// SetContentRequestAdapter installs a.
func (s *Settings) SetContentRequestAdapter(a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapter = a
}

// Install binds a new KalturaAdapter to player. An empty applicationName keeps
// the name of the adapter already installed.
func Install(player Player, applicationName string) *KalturaAdapter {
	settings := player.Settings()
	if applicationName == "" {
		if current := settings.ContentRequestAdapter(); current != nil {
			applicationName = current.ApplicationName()
		}
	}
	a := NewKalturaAdapter(applicationName, player.SessionID())
	settings.SetContentRequestAdapter(a)
	return a
}

// KalturaAdapter appends clientTag, playSessionId, referrer and name to
// playManifest URLs.
type KalturaAdapter struct {
	applicationName string
	clientTag       string

	mu            sync.RWMutex
	playSessionID string
}

// NewKalturaAdapter creates an adapter for a session.
func NewKalturaAdapter(applicationName, sessionID string) *KalturaAdapter {
	return &KalturaAdapter{
		applicationName: applicationName,
		clientTag:       version.ClientTag(),
		playSessionID:   sessionID,
	}
}

func (a *KalturaAdapter) ApplicationName() string {
	return a.applicationName
}

// SessionID returns the play session ID currently appended to URLs.
func (a *KalturaAdapter) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.playSessionID
}

// UpdateParams picks up the player's current session ID.
func (a *KalturaAdapter) UpdateParams(player Player) {
	id := player.SessionID()
	a.mu.Lock()
	a.playSessionID = id
	a.mu.Unlock()
}

// Adapt returns params with the tracking parameters appended. Only playManifest
// URLs are changed; the existing query is kept as is.
func (a *KalturaAdapter) Adapt(params RequestParams) RequestParams {
	u := params.URL
	if u == nil || !strings.Contains(u.Path, playManifestSegment) {
		return params
	}

	extra := []string{
		"clientTag=" + url.QueryEscape(a.clientTag),
		"playSessionId=" + url.QueryEscape(a.SessionID()),
	}
	if a.applicationName != "" {
		referrer := base64.StdEncoding.EncodeToString([]byte(a.applicationName))
		extra = append(extra, "referrer="+url.QueryEscape(referrer))
	}
	if last := path.Base(u.Path); strings.HasSuffix(last, ".wvm") {
		// Classic Widevine players need the URL to end with the file name.
		extra = append(extra, "name="+url.QueryEscape(last))
	}

	adapted := *u
	if adapted.User != nil {
		user := *adapted.User
		adapted.User = &user
	}
	query := strings.Join(extra, "&")
	if adapted.RawQuery != "" {
		query = adapted.RawQuery + "&" + query
	}
	adapted.RawQuery = query
	adapted.ForceQuery = false

	return RequestParams{URL: &adapted, Headers: params.Headers.Clone()}
}
