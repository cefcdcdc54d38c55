// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ManuGH/playkit/internal/api/middleware"
	"github.com/ManuGH/playkit/internal/drm"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/media"
	"github.com/ManuGH/playkit/internal/platform/fs"
	"github.com/ManuGH/playkit/internal/playback"
	"github.com/ManuGH/playkit/internal/provider"
	"github.com/ManuGH/playkit/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

// HeaderKS lets a caller supply its own session instead of the configured one.
const HeaderKS = "X-Kaltura-Session"

const maxAdaptBody = 64 << 10

type entryResponse struct {
	ID         string              `json:"id"`
	Name       string              `json:"name,omitempty"`
	MediaType  string              `json:"mediaType,omitempty"`
	DurationMs int64               `json:"durationMs"`
	Sources    []media.MediaSource `json:"sources"`
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.Config()
	entryID := chi.URLParam(r, "entryID")

	session := provider.StaticSession{URL: cfg.OVP.BaseURL, Session: cfg.OVP.KS, Partner: cfg.OVP.PartnerID}
	if ks := strings.TrimSpace(r.Header.Get(HeaderKS)); ks != "" {
		session = session.WithKS(ks)
	}
	middleware.AddSpanAttributes(r, telemetry.EntryAttributes(entryID, cfg.OVP.PartnerID)...)

	entry, err := s.deps.Entries.LoadEntry(r.Context(), session, entryID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{
		ID:         entry.ID,
		Name:       entry.Name,
		MediaType:  entry.MediaType,
		DurationMs: entry.DurationMs(),
		Sources:    entry.Sources,
	})
}

type adaptRequest struct {
	URL             string `json:"url"`
	SessionID       string `json:"sessionId,omitempty"`
	ApplicationName string `json:"applicationName,omitempty"`
}

type adaptResponse struct {
	URL             string `json:"url"`
	SessionID       string `json:"sessionId"`
	ApplicationName string `json:"applicationName"`
}

func (s *Server) handleAdapt(w http.ResponseWriter, r *http.Request) {
	var req adaptRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdaptBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeProblem(w, r, http.StatusBadRequest, CodeBadRequest, "url is required")
		return
	}

	appName := req.ApplicationName
	if appName == "" {
		appName = s.deps.Config().Playback.ApplicationName
	}
	player := playback.NewSessionPlayer(req.SessionID)
	adapter := playback.Install(player, appName)

	adapted, err := player.AdaptURL(req.URL)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, CodeBadRequest, "invalid url")
		return
	}
	logger := xglog.WithContext(r.Context(), s.logger)
	logger.Debug().
		Str(xglog.FieldEvent, "playback.adapted").
		Str(xglog.FieldSessionID, player.SessionID()).
		Msg("playback url adapted")

	writeJSON(w, http.StatusOK, adaptResponse{
		URL:             adapted,
		SessionID:       player.SessionID(),
		ApplicationName: adapter.ApplicationName(),
	})
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	manifest := strings.TrimSpace(r.URL.Query().Get("manifest"))
	if manifest == "" {
		writeProblem(w, r, http.StatusBadRequest, CodeBadRequest, "manifest query parameter is required")
		return
	}

	location, err := s.manifestLocation(manifest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Prober.Probe(r.Context(), location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// errLocationDenied rejects manifest references the configuration does not allow.
var errLocationDenied = errors.New("manifest location not allowed")

// manifestLocation validates a client supplied manifest reference. Remote
// URLs need drm.allowRemote; local paths must stay under drm.manifestRoot.
func (s *Server) manifestLocation(manifest string) (string, error) {
	cfg := s.deps.Config().DRM

	if u, err := url.Parse(manifest); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if !cfg.AllowRemote {
			return "", fmt.Errorf("%w: remote manifests are disabled", errLocationDenied)
		}
		return manifest, nil
	}
	if cfg.ManifestRoot == "" {
		return "", fmt.Errorf("%w: no manifest root configured", errLocationDenied)
	}

	var (
		path string
		err  error
	)
	local := strings.TrimPrefix(manifest, "file://")
	if filepath.IsAbs(local) {
		path, err = fs.ConfineAbsPath(cfg.ManifestRoot, local)
	} else {
		path, err = fs.ConfineRelPath(cfg.ManifestRoot, local)
	}
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, fs.ErrEscapesRoot):
		return "", err
	default:
		return "", fmt.Errorf("%w: %w", drm.ErrNotFound, err)
	}
}
