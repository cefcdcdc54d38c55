// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/playkit/internal/config"
	"github.com/ManuGH/playkit/internal/drm"
	"github.com/ManuGH/playkit/internal/ovp"
	"github.com/ManuGH/playkit/internal/platform/fs"
	"github.com/ManuGH/playkit/internal/provider"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKS      = "djJ8MjIwOTU5MXx0ZXN0"
	testPartner = 2209591

	clearMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT10S" minBufferTime="PT2S" profiles="urn:mpeg:dash:profile:isoff-live:2011">
  <Period id="p0">
    <AdaptationSet id="1" mimeType="video/mp4">
      <SegmentTemplate initialization="init.mp4" media="$Number$.m4s" startNumber="1" duration="2" timescale="1"/>
      <Representation id="v1" bandwidth="800000" codecs="avc1.4d401e" width="640" height="360"/>
    </AdaptationSet>
  </Period>
</MPD>`
)

type testEnv struct {
	backend *ovp.MockServer
	cfg     config.AppConfig
	server  *Server
}

func newTestEnv(t *testing.T, mutate func(*config.AppConfig)) *testEnv {
	t.Helper()
	backend := ovp.NewMockServer(testKS)
	t.Cleanup(backend.Close)

	cfg := config.Defaults()
	cfg.OVP.BaseURL = backend.URL
	cfg.OVP.PartnerID = testPartner
	cfg.OVP.KS = testKS
	cfg.Playback.ApplicationName = "playkit-test"
	cfg.API.RateLimit = 0
	cfg.DRM.ManifestRoot = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}

	httpClient := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{}}
	t.Cleanup(httpClient.CloseIdleConnections)
	client := ovp.NewClient(backend.URL, ovp.Options{MaxRetries: -1, HTTPClient: httpClient})

	logger := zerolog.Nop()
	srv, err := NewServer(Deps{
		Config:  func() config.AppConfig { return cfg },
		Entries: provider.NewOVPProvider(client, provider.WithLogger(logger)),
		Logger:  &logger,
	})
	require.NoError(t, err)
	return &testEnv{backend: backend, cfg: cfg, server: srv}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	require.Error(t, err)

	_, err = NewServer(Deps{Config: config.Defaults})
	require.Error(t, err)
}

func TestGetEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.AddEntry(ovp.MockEntry{
		Entry: ovp.MediaEntry{
			ID:             "1_abc",
			Name:           "Trailer",
			MsDuration:     102000,
			DataURL:        "https://cdn.example.com/p/2209591/sp/0/playManifest/entryId/1_abc/format/url/protocol/http/a.mp4",
			FlavorParamsIDs: "0,487041",
		},
		Context: ovp.EntryContextDataResult{
			FlavorAssets: []ovp.FlavorAsset{{ID: "1_f1", FlavorParamsID: 487041, Bitrate: 800}},
		},
	})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_abc", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got entryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "1_abc", got.ID)
	assert.Equal(t, "Trailer", got.Name)
	assert.EqualValues(t, 102000, got.DurationMs)
	require.Len(t, got.Sources, 1)
	assert.True(t, strings.HasSuffix(got.Sources[0].URL, "/flavorIds/0_,1_f1"), got.Sources[0].URL)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestGetEntry_KSHeaderOverridesConfig(t *testing.T) {
	env := newTestEnv(t, func(c *config.AppConfig) { c.OVP.KS = "" })
	env.backend.AddEntry(ovp.MockEntry{Entry: ovp.MediaEntry{ID: "1_abc"}})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, decodeBody(t, w)["code"])
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_abc", nil)
	req.Header.Set(HeaderKS, testKS)
	w = env.do(t, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGetEntry_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.AddEntry(ovp.MockEntry{
		Entry:     ovp.MediaEntry{ID: "1_blocked"},
		ListError: &ovp.APIError{Code: "SERVICE_FORBIDDEN", Message: "forbidden"},
	})

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeBody(t, w)["code"])

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_blocked", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_blocked", nil)
	req.Header.Set(HeaderKS, "wrong")
	w = env.do(t, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.backend.SetFailures(1)
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_blocked", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, CodeUpstream, decodeBody(t, w)["code"])
}

func TestAdapt(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"url":"https://cdn.example.com/p/1/playManifest/entryId/1_x/format/url/a.wvm","sessionId":"s-1"}`
	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/playback/adapt", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got adaptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, "playkit-test", got.ApplicationName)

	u, err := url.Parse(got.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "s-1", q.Get("playSessionId"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("playkit-test")), q.Get("referrer"))
	assert.Equal(t, "a.wvm", q.Get("name"))
	assert.NotEmpty(t, q.Get("clientTag"))
}

func TestAdapt_GeneratesSessionAndKeepsOtherURLs(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"url":"https://cdn.example.com/hls/master.m3u8?a=1","applicationName":"tv"}`
	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/playback/adapt", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var got adaptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "https://cdn.example.com/hls/master.m3u8?a=1", got.URL)
	assert.NotEmpty(t, got.SessionID)
	assert.Equal(t, "tv", got.ApplicationName)
}

func TestAdapt_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{`{`, `{"url":""}`, `{"url":"x","extra":1}`, `{"url":"http://[::1"}`} {
		w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/playback/adapt", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestProbe_LocalManifest(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.DRM.ManifestRoot, "clear.mpd"), []byte(clearMPD), 0o600))

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/drm/probe?manifest=clear.mpd", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got drm.ProbeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "v1", got.Format.ID)
	assert.False(t, got.HasContentProtection)
}

func TestProbe_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.DRM.ManifestRoot, "bad.mpd"), []byte("<MPD"), 0o600))

	tests := []struct {
		name     string
		manifest string
		status   int
	}{
		{"missing parameter", "", http.StatusBadRequest},
		{"traversal", "../outside.mpd", http.StatusForbidden},
		{"absolute outside root", "/etc/passwd", http.StatusForbidden},
		{"remote disabled", "https://cdn.example.com/manifest.mpd", http.StatusForbidden},
		{"missing file", "nope.mpd", http.StatusNotFound},
		{"invalid manifest", "bad.mpd", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/v1/drm/probe"
			if tt.manifest != "" {
				target += "?manifest=" + url.QueryEscape(tt.manifest)
			}
			w := env.do(t, httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func protectedMPD(baseURL string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT10S" minBufferTime="PT2S" profiles="urn:mpeg:dash:profile:isoff-live:2011">
  <BaseURL>` + baseURL + `</BaseURL>
  <Period id="p0">
    <AdaptationSet id="1" mimeType="video/mp4">
      <ContentProtection schemeIdUri="urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed"/>
      <SegmentTemplate initialization="init.mp4" media="$Number$.m4s" startNumber="1" duration="2" timescale="1"/>
      <Representation id="v1" bandwidth="800000"/>
    </AdaptationSet>
  </Period>
</MPD>`
}

func TestProbe_InitSegmentConfinedToRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	require.NoError(t, os.MkdirAll(filepath.Join(parent, "secret"), 0o750))
	require.NoError(t, os.MkdirAll(root, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret", "init.mp4"), []byte("outside"), 0o600))

	manifests := map[string]string{
		"file-url.mpd":  protectedMPD("file://" + filepath.ToSlash(filepath.Join(parent, "secret")) + "/"),
		"traversal.mpd": protectedMPD("../secret/"),
		"missing.mpd":   protectedMPD("file://" + filepath.ToSlash(filepath.Join(parent, "nothing-here")) + "/"),
	}
	for name, body := range manifests {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o600))
	}
	env := newTestEnv(t, func(c *config.AppConfig) { c.DRM.ManifestRoot = root })

	for name := range manifests {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/drm/probe?manifest="+name, nil))
			assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
			assert.NotContains(t, w.Body.String(), "outside")
		})
	}
}

func TestProbe_RemoteUsesProber(t *testing.T) {
	var seen string
	logger := zerolog.Nop()
	cfg := config.Defaults()
	cfg.DRM.AllowRemote = true
	srv, err := NewServer(Deps{
		Config:  func() config.AppConfig { return cfg },
		Entries: provider.NewOVPProvider(nil),
		Prober: ProberFunc(func(_ context.Context, location string) (*drm.ProbeResult, error) {
			seen = location
			return nil, fmt.Errorf("%w: upstream 500", drm.ErrFetch)
		}),
		Logger: &logger,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/drm/probe?manifest="+url.QueryEscape("https://cdn.example.com/m.mpd"), nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "https://cdn.example.com/m.mpd", seen)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/entries/1_none", nil))
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "playkit_http_request_duration_seconds")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ovp.ErrBadRequest, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ovp.ErrNotFound), http.StatusNotFound},
		{drm.ErrNotFound, http.StatusNotFound},
		{fs.ErrEscapesRoot, http.StatusForbidden},
		{ovp.ErrTimeout, http.StatusGatewayTimeout},
		{drm.ErrInvalidMedia, http.StatusUnprocessableEntity},
		{ovp.ErrUnavailable, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
