// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import (
	"net/url"
	"sync"

	"github.com/google/uuid"
)

// SessionPlayer is a Player without a media engine, used by the API and CLI
// to adapt URLs on behalf of a remote player.
type SessionPlayer struct {
	mu        sync.RWMutex
	sessionID string
	settings  Settings
}

// NewSessionPlayer creates a player for sessionID; an empty ID starts a new session.
func NewSessionPlayer(sessionID string) *SessionPlayer {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return &SessionPlayer{sessionID: sessionID}
}

// NewSessionID returns a fresh play session ID.
func NewSessionID() string {
	return uuid.NewString()
}

func (p *SessionPlayer) SessionID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionID
}

func (p *SessionPlayer) Settings() *Settings {
	return &p.settings
}

// SetSessionID switches to a new session and refreshes the installed adapter.
func (p *SessionPlayer) SetSessionID(id string) {
	p.mu.Lock()
	p.sessionID = id
	p.mu.Unlock()
	if a := p.settings.ContentRequestAdapter(); a != nil {
		a.UpdateParams(p)
	}
}

// AdaptURL runs rawURL through the installed adapter.
func (p *SessionPlayer) AdaptURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	a := p.settings.ContentRequestAdapter()
	if a == nil {
		return u.String(), nil
	}
	return a.Adapt(RequestParams{URL: u}).URL.String(), nil
}
