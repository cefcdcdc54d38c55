// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package drm inspects DASH manifests for content protection and extracts the
// Widevine initialization data of the first video representation.
package drm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Eyevinn/dash-mpd/mpd"
	"github.com/Eyevinn/mp4ff/mp4"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrInvalidManifest is returned for manifests the probe cannot work with.
	ErrInvalidManifest = errors.New("drm: invalid manifest")
	// ErrInvalidMedia is returned when the init chunk cannot be decoded.
	ErrInvalidMedia = errors.New("drm: invalid media")
	// ErrNotFound is returned when the manifest or media does not exist.
	ErrNotFound = errors.New("drm: not found")
	// ErrFetch is returned for transport failures.
	ErrFetch = errors.New("drm: fetch failed")
)

var probeResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "playkit_drm_probe_total",
	Help: "DRM probes by outcome (clear, protected, widevine, error)",
}, []string{"result"})

// Format describes the probed representation.
type Format struct {
	ID        string `json:"id"`
	MimeType  string `json:"mimeType,omitempty"`
	Codecs    string `json:"codecs,omitempty"`
	Bandwidth uint32 `json:"bandwidth,omitempty"`
	Width     uint32 `json:"width,omitempty"`
	Height    uint32 `json:"height,omitempty"`
}

// ProbeResult is the outcome of probing one manifest.
type ProbeResult struct {
	Format               Format   `json:"format"`
	HasContentProtection bool     `json:"hasContentProtection"`
	Schemes              []string `json:"schemes,omitempty"`
	DefaultKID           string   `json:"defaultKid,omitempty"`
	// WidevineInitData is the complete Widevine pssh box.
	WidevineInitData []byte `json:"widevineInitData,omitempty"`
	// WidevineSchemeData is the box payload, as older CDMs expect it.
	WidevineSchemeData []byte `json:"widevineSchemeData,omitempty"`
	InitURI            string `json:"initUri,omitempty"`
}

// HasWidevine reports whether Widevine init data was found.
func (r *ProbeResult) HasWidevine() bool {
	return len(r.WidevineInitData) > 0
}

type probeConfig struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

// ProbeOption configures Probe.
type ProbeOption func(*probeConfig)

// WithFetcher sets the fetcher used for the manifest and init chunk.
func WithFetcher(f Fetcher) ProbeOption {
	return func(c *probeConfig) { c.fetcher = f }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) ProbeOption {
	return func(c *probeConfig) { c.logger = l }
}

// Probe loads the manifest at location (path, file:// or http(s):// URL) and
// reports the protection of its first video representation.
func Probe(ctx context.Context, location string, opts ...ProbeOption) (*ProbeResult, error) {
	cfg := probeConfig{
		fetcher: NewMultiFetcher(10*time.Second, true),
		logger:  xglog.WithComponent("drm"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := telemetry.Tracer("playkit.drm").Start(ctx, "drm.probe")
	defer span.End()

	logger := xglog.WithContext(ctx, cfg.logger).With().Str(xglog.FieldManifest, location).Logger()
	p := &prober{fetcher: cfg.fetcher, logger: logger}

	res, err := p.probe(ctx, location)
	if err != nil {
		probeResults.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(telemetry.ProbeAttributes(location, res.Format.ID, res.HasContentProtection, res.HasWidevine())...)
	switch {
	case res.HasWidevine():
		probeResults.WithLabelValues("widevine").Inc()
	case res.HasContentProtection:
		probeResults.WithLabelValues("protected").Inc()
	default:
		probeResults.WithLabelValues("clear").Inc()
	}
	return res, nil
}

type prober struct {
	fetcher Fetcher
	logger  zerolog.Logger
}

func (p *prober) probe(ctx context.Context, location string) (*ProbeResult, error) {
	base, err := manifestURL(location)
	if err != nil {
		return nil, err
	}

	data, err := p.fetcher.Fetch(ctx, location, "")
	if err != nil {
		return nil, err
	}
	m, err := mpd.ReadFromString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if len(m.Periods) == 0 || m.Periods[0] == nil {
		return nil, fmt.Errorf("%w: at least one period is required", ErrInvalidManifest)
	}
	period := m.Periods[0]

	as := videoAdaptationSet(period)
	if as == nil {
		return nil, fmt.Errorf("%w: a video adaptation set is required", ErrInvalidManifest)
	}
	if len(as.Representations) == 0 || as.Representations[0] == nil {
		return nil, fmt.Errorf("%w: at least one video representation is required", ErrInvalidManifest)
	}
	rep := as.Representations[0]

	res := &ProbeResult{Format: formatOf(as, rep)}
	logger := p.logger.With().Str(xglog.FieldRepresentation, rep.Id).Logger()

	// Set level descriptors apply to every representation in the set.
	protections := make([]*mpd.ContentProtectionType, 0, len(as.ContentProtections)+len(rep.ContentProtections))
	protections = append(protections, as.ContentProtections...)
	protections = append(protections, rep.ContentProtections...)
	res.DefaultKID = contentKeyID(protections)

	var systems []*mpd.ContentProtectionType
	seen := make(map[string]bool)
	for _, cp := range protections {
		if cp == nil {
			continue
		}
		scheme := strings.ToLower(strings.TrimSpace(string(cp.SchemeIdUri)))
		if !strings.HasPrefix(scheme, "urn:uuid:") {
			continue
		}
		// Keep the first descriptor per system that carries a cenc:pssh.
		id := normalizeSystemID(scheme)
		if seen[id] {
			if cp.Pssh == nil {
				continue
			}
			if i := systemIndex(systems, id); i >= 0 && systems[i].Pssh == nil {
				systems[i] = cp
			}
			continue
		}
		seen[id] = true
		systems = append(systems, cp)
	}
	if len(systems) == 0 {
		logger.Info().Str(xglog.FieldEvent, "drm.clear").Msg("no content protection found")
		return res, nil
	}

	res.HasContentProtection = true
	for _, cp := range systems {
		res.Schemes = appendUnique(res.Schemes, SystemName(string(cp.SchemeIdUri)))
	}

	repBase, err := resolveBaseURL(base, m, period, as, rep)
	if err != nil {
		return nil, err
	}
	initURI, initRange := initLocation(repBase, as, rep)

	var widevine *mp4.PsshBox
	if initURI != "" {
		res.InitURI = fetchLocation(initURI)
		logger = logger.With().Str(xglog.FieldInitURI, res.InitURI).Logger()

		initData, err := p.fetcher.Fetch(ctx, fetchLocation(initURI), initRange)
		if err != nil {
			return nil, fmt.Errorf("fetch init segment: %w", err)
		}
		boxes, err := psshBoxesFromInit(initData)
		if err != nil {
			return nil, err
		}
		if len(boxes) == 0 {
			logger.Info().Str(xglog.FieldEvent, "drm.no_pssh").Msg("no PSSH in media")
		}
		for _, box := range boxes {
			if isWidevine(box) {
				widevine = box
			}
		}
		if len(boxes) > 0 && widevine == nil {
			logger.Info().Str(xglog.FieldEvent, "drm.no_widevine").Msg("no Widevine PSSH in media")
		}
	} else {
		logger.Debug().Str(xglog.FieldEvent, "drm.no_init").Msg("representation has no initialization segment")
	}

	if widevine == nil {
		widevine = p.manifestWidevine(systems, logger)
	}
	if widevine != nil {
		initData, err := encodeBox(widevine)
		if err != nil {
			return nil, err
		}
		res.WidevineInitData = initData
		res.WidevineSchemeData = append([]byte(nil), widevine.Data...)
	}

	logger.Debug().
		Str(xglog.FieldEvent, "drm.probed").
		Strs("schemes", res.Schemes).
		Bool("widevine", res.HasWidevine()).
		Msg("content protection probed")
	return res, nil
}

// manifestWidevine reads the cenc:pssh of the Widevine descriptor.
func (p *prober) manifestWidevine(systems []*mpd.ContentProtectionType, logger zerolog.Logger) *mp4.PsshBox {
	for _, cp := range systems {
		if normalizeSystemID(string(cp.SchemeIdUri)) != WidevineSystemID || cp.Pssh == nil {
			continue
		}
		box, err := psshFromBase64(cp.Pssh.Value)
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "drm.manifest_pssh_invalid").Msg("ignoring invalid manifest PSSH")
			continue
		}
		if !isWidevine(box) {
			continue
		}
		logger.Debug().Str(xglog.FieldEvent, "drm.manifest_pssh").Msg("using Widevine PSSH from manifest")
		return box
	}
	return nil
}

// mp4ProtectionScheme is the common encryption descriptor that signals the
// default key ID.
const mp4ProtectionScheme = "urn:mpeg:dash:mp4protection:2011"

// contentKeyID prefers the mp4protection descriptor's cenc:default_KID and
// falls back to the first descriptor that carries one.
func contentKeyID(protections []*mpd.ContentProtectionType) string {
	var fallback string
	for _, cp := range protections {
		if cp == nil {
			continue
		}
		kid := strings.ToLower(strings.TrimSpace(cp.DefaultKID))
		if kid == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(cp.SchemeIdUri)), mp4ProtectionScheme) {
			return kid
		}
		if fallback == "" {
			fallback = kid
		}
	}
	return fallback
}

func systemIndex(systems []*mpd.ContentProtectionType, id string) int {
	for i, cp := range systems {
		if normalizeSystemID(string(cp.SchemeIdUri)) == id {
			return i
		}
	}
	return -1
}

func videoAdaptationSet(period *mpd.Period) *mpd.AdaptationSetType {
	for _, as := range period.AdaptationSets {
		if as == nil {
			continue
		}
		if strings.EqualFold(string(as.ContentType), "video") || isVideoMime(as.MimeType) {
			return as
		}
		if len(as.Representations) > 0 && as.Representations[0] != nil && isVideoMime(as.Representations[0].MimeType) {
			return as
		}
	}
	return nil
}

func isVideoMime(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "video/")
}

func formatOf(as *mpd.AdaptationSetType, rep *mpd.RepresentationType) Format {
	f := Format{
		ID:        rep.Id,
		MimeType:  rep.MimeType,
		Codecs:    rep.Codecs,
		Bandwidth: rep.Bandwidth,
		Width:     rep.Width,
		Height:    rep.Height,
	}
	if f.MimeType == "" {
		f.MimeType = as.MimeType
	}
	if f.Codecs == "" {
		f.Codecs = as.Codecs
	}
	if f.Width == 0 {
		f.Width = as.Width
	}
	if f.Height == 0 {
		f.Height = as.Height
	}
	return f
}

// manifestURL turns the probe location into the base for relative references.
func manifestURL(location string) (*url.URL, error) {
	if isRemote(location) || strings.HasPrefix(location, "file:") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid manifest location: %v", ErrFetch, err)
		}
		return u, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

func firstBaseURL(urls []*mpd.BaseURLType) string {
	for _, b := range urls {
		if b != nil && strings.TrimSpace(string(b.Value)) != "" {
			return strings.TrimSpace(string(b.Value))
		}
	}
	return ""
}

// resolveBaseURL applies the MPD, Period, AdaptationSet and Representation
// BaseURLs in order.
func resolveBaseURL(base *url.URL, m *mpd.MPD, period *mpd.Period, as *mpd.AdaptationSetType, rep *mpd.RepresentationType) (*url.URL, error) {
	cur := base
	for _, ref := range []string{firstBaseURL(m.BaseURL), firstBaseURL(period.BaseURLs), firstBaseURL(as.BaseURLs), firstBaseURL(rep.BaseURLs)} {
		if ref == "" {
			continue
		}
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid BaseURL %q: %v", ErrInvalidManifest, ref, err)
		}
		cur = cur.ResolveReference(u)
	}
	return cur, nil
}

// initLocation finds the initialization chunk of rep. It returns "" when the
// representation does not describe one.
func initLocation(repBase *url.URL, as *mpd.AdaptationSetType, rep *mpd.RepresentationType) (string, string) {
	segBase := rep.SegmentBase
	if segBase == nil {
		segBase = as.SegmentBase
	}
	if segBase != nil {
		if init := segBase.Initialization; init != nil {
			return resolveRef(repBase, string(init.SourceURL)), init.Range
		}
		// Without an Initialization element the init chunk precedes the index.
		if first, _, ok := strings.Cut(segBase.IndexRange, "-"); ok {
			if start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64); err == nil && start > 0 {
				return repBase.String(), fmt.Sprintf("0-%d", start-1)
			}
		}
	}

	tmpl := rep.SegmentTemplate
	if tmpl == nil {
		tmpl = as.SegmentTemplate
	}
	if tmpl != nil && tmpl.Initialization != "" {
		name := strings.ReplaceAll(tmpl.Initialization, "$RepresentationID$", rep.Id)
		name = strings.ReplaceAll(name, "$Bandwidth$", strconv.FormatUint(uint64(rep.Bandwidth), 10))
		return resolveRef(repBase, name), ""
	}
	return "", ""
}

func resolveRef(base *url.URL, ref string) string {
	if strings.TrimSpace(ref) == "" {
		return base.String()
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// fetchLocation converts file URLs back to paths for the file fetcher.
func fetchLocation(uri string) string {
	if strings.HasPrefix(uri, "file:") {
		if u, err := url.Parse(uri); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	return uri
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
