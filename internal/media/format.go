// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"net/url"
	"path"
	"strings"
)

// MediaFormat is the container/streaming format of a source.
type MediaFormat string

const (
	FormatDASH    MediaFormat = "dash"
	FormatHLS     MediaFormat = "hls"
	FormatMP4     MediaFormat = "mp4"
	FormatWVM     MediaFormat = "wvm"
	FormatUnknown MediaFormat = "unknown"
)

// FormatFromURL derives the format from the extension of the URL path.
func FormatFromURL(rawURL string) MediaFormat {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mpd":
		return FormatDASH
	case ".m3u8":
		return FormatHLS
	case ".mp4":
		return FormatMP4
	case ".wvm":
		return FormatWVM
	}
	return FormatUnknown
}

// FormatFromDelivery maps an OVP delivery profile format name.
func FormatFromDelivery(format string) MediaFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mpegdash":
		return FormatDASH
	case "applehttp":
		return FormatHLS
	case "url":
		return FormatMP4
	}
	return FormatUnknown
}

// DRMScheme identifies a DRM system and protection mode.
type DRMScheme string

const (
	SchemeWidevineCENC    DRMScheme = "widevine_cenc"
	SchemePlayReadyCENC   DRMScheme = "playready_cenc"
	SchemeWidevineClassic DRMScheme = "widevine_classic"
	SchemeFairPlay        DRMScheme = "fairplay"
	SchemeUnknown         DRMScheme = "unknown"
)

// SchemeFromOVP maps OVP scheme names such as "drm.WIDEVINE_CENC" or "PLAYREADY_CENC".
func SchemeFromOVP(name string) DRMScheme {
	n := strings.ToUpper(strings.TrimSpace(name))
	if i := strings.LastIndexByte(n, '.'); i >= 0 {
		n = n[i+1:]
	}
	switch n {
	case "WIDEVINE_CENC":
		return SchemeWidevineCENC
	case "PLAYREADY_CENC", "PLAYREADY":
		return SchemePlayReadyCENC
	case "WIDEVINE":
		return SchemeWidevineClassic
	case "FAIRPLAY":
		return SchemeFairPlay
	}
	return SchemeUnknown
}
