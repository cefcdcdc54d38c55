// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/ManuGH/playkit/internal/config"
	"github.com/ManuGH/playkit/internal/health"
	"github.com/ManuGH/playkit/internal/ovp"
	"github.com/ManuGH/playkit/internal/version"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKS = "djJ8MjIwOTU5MXx0ZXN0"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setEnv(t *testing.T, backendURL string) {
	t.Helper()
	t.Setenv("PLAYKIT_CONFIG", "")
	t.Setenv("PLAYKIT_LOG_LEVEL", "error")
	t.Setenv("PLAYKIT_OVP_BASE_URL", backendURL)
	t.Setenv("PLAYKIT_OVP_KS", testKS)
	t.Setenv("PLAYKIT_OVP_PARTNER_ID", "2209591")
	t.Setenv("PLAYKIT_CACHE_BACKEND", "none")
	t.Setenv("PLAYKIT_APPLICATION_NAME", "playkit-cli")
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, version.Version))
}

func TestResolveCmd(t *testing.T) {
	backend := ovp.NewMockServer(testKS)
	defer backend.Close()
	backend.AddEntry(ovp.MockEntry{
		Entry: ovp.MediaEntry{ID: "1_abc", MsDuration: 5000},
		Context: ovp.EntryContextDataResult{Sources: []ovp.Source{{
			ID:     "src1",
			Format: "mpegdash",
			URL:    "https://cdn.example.com/playManifest/entryId/1_abc/format/mpegdash/manifest.mpd",
		}}},
	})
	setEnv(t, backend.URL)

	out, err := run(t, "resolve", "1_abc")
	require.NoError(t, err)

	var got struct {
		ID         string `json:"id"`
		DurationMs int64  `json:"durationMs"`
		Sources    []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "1_abc", got.ID)
	assert.EqualValues(t, 5000, got.DurationMs)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "src1", got.Sources[0].ID)

	_, err = run(t, "resolve", "1_abc", "--ks", "expired")
	require.ErrorIs(t, err, ovp.ErrForbidden)
}

func TestResolveCmd_RequiresEntry(t *testing.T) {
	_, err := run(t, "resolve")
	require.Error(t, err)
}

func TestAdaptCmd(t *testing.T) {
	setEnv(t, "https://cdnapisec.kaltura.com")

	out, err := run(t, "adapt", "https://cdn.example.com/p/1/playManifest/entryId/1_x/a.mp4", "--session", "s-9")
	require.NoError(t, err)

	u, err := url.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "s-9", u.Query().Get("playSessionId"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("playkit-cli")), u.Query().Get("referrer"))
}

func TestProbeCmd_WritesInitData(t *testing.T) {
	setEnv(t, "https://cdnapisec.kaltura.com")
	dir := t.TempDir()

	sys, err := hex.DecodeString("edef8ba979d64acea3c827dcd51d21ed")
	require.NoError(t, err)
	box := &mp4.PsshBox{SystemID: mp4.UUID(sys), Data: []byte{0x08, 0x01}}
	var encoded bytes.Buffer
	require.NoError(t, box.Encode(&encoded))

	manifest := `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" xmlns:cenc="urn:mpeg:cenc:2013" type="static" mediaPresentationDuration="PT10S" minBufferTime="PT2S" profiles="urn:mpeg:dash:profile:isoff-on-demand:2011">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <ContentProtection schemeIdUri="urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed">
        <cenc:pssh>` + base64.StdEncoding.EncodeToString(encoded.Bytes()) + `</cenc:pssh>
      </ContentProtection>
      <Representation id="v1" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`
	path := filepath.Join(dir, "wv.mpd")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))
	outFile := filepath.Join(dir, "init.pssh")

	out, err := run(t, "probe", path, "--out", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, `"hasContentProtection": true`)

	written, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, encoded.Bytes(), written)
}

func TestProbeCmd_ClearWithOutFails(t *testing.T) {
	setEnv(t, "https://cdnapisec.kaltura.com")
	dir := t.TempDir()
	manifest := `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT10S" minBufferTime="PT2S" profiles="urn:mpeg:dash:profile:isoff-on-demand:2011">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <Representation id="v1" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`
	path := filepath.Join(dir, "clear.mpd")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	_, err := run(t, "probe", path, "--out", filepath.Join(dir, "x"))
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "x"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewEntryCache(t *testing.T) {
	for _, backend := range []string{"memory", "none"} {
		c, closer, err := newEntryCache(t.Context(), config.CacheConfig{Backend: backend})
		require.NoError(t, err, backend)
		require.NotNil(t, c)
		require.NoError(t, closer.Close())
	}
	_, _, err := newEntryCache(t.Context(), config.CacheConfig{Backend: "bogus"})
	require.Error(t, err)
}

func TestNewEntryCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, closer, err := newEntryCache(t.Context(), config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	pinger, ok := c.(health.Pinger)
	require.True(t, ok, "redis cache should expose a health check")
	require.NoError(t, pinger.HealthCheck(t.Context()))

	mr.Close()
	_, _, err = newEntryCache(t.Context(), config.CacheConfig{Backend: "redis", RedisAddr: mr.Addr()})
	require.Error(t, err)
}
