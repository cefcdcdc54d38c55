// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/playkit/internal/media"
	"github.com/ManuGH/playkit/internal/ovp"
)

// sourceFlavorID is the flavor id the backend uses for the original upload.
const sourceFlavorID = "0_"

// BuildMediaEntry merges entry metadata and its context data into a MediaEntry.
// maxBitrate is in kbps; 0 disables filtering.
func BuildMediaEntry(entry *ovp.MediaEntry, contextData *ovp.EntryContextDataResult, maxBitrate int) *media.MediaEntry {
	out := &media.MediaEntry{
		ID:        entry.ID,
		Name:      entry.Name,
		Duration:  entryDuration(entry),
		MediaType: entry.MediaTypeName(),
	}

	if contextData != nil && len(contextData.Sources) > 0 {
		out.Sources = sourcesFromContext(entry.ID, contextData, maxBitrate)
	} else {
		out.Sources = sourcesFromFlavors(entry, contextData, maxBitrate)
	}
	if out.Sources == nil {
		out.Sources = []media.MediaSource{}
	}
	return out
}

func entryDuration(entry *ovp.MediaEntry) time.Duration {
	if entry.MsDuration > 0 {
		return time.Duration(entry.MsDuration) * time.Millisecond
	}
	return time.Duration(entry.Duration) * time.Second
}

func sourcesFromContext(entryID string, contextData *ovp.EntryContextDataResult, maxBitrate int) []media.MediaSource {
	ids := newIDSet()
	sources := make([]media.MediaSource, 0, len(contextData.Sources))
	for i := range contextData.Sources {
		src := &contextData.Sources[i]
		if !withinBitrate(src, contextData, maxBitrate) {
			continue
		}

		format := media.FormatFromDelivery(src.Format)
		if format == media.FormatUnknown {
			format = media.FormatFromURL(src.URL)
		}

		ms := media.MediaSource{
			ID:     ids.unique(sourceID(entryID, i, src)),
			URL:    src.URL,
			Format: format,
		}
		for _, drm := range src.DRM {
			ms.DRM = append(ms.DRM, media.DRMParams{
				LicenseURL: drm.LicenseURL,
				Scheme:     media.SchemeFromOVP(drm.Scheme),
			})
		}
		sources = append(sources, ms)
	}
	return sources
}

func sourceID(entryID string, index int, src *ovp.Source) string {
	switch {
	case strings.TrimSpace(src.ID) != "":
		return strings.TrimSpace(src.ID)
	case src.DeliveryProfileID > 0:
		return fmt.Sprintf("%d,%s", src.DeliveryProfileID, src.Format)
	default:
		return fmt.Sprintf("%s_%d", entryID, index)
	}
}

// withinBitrate drops a source only when every flavor it references is known
// and above the limit.
func withinBitrate(src *ovp.Source, contextData *ovp.EntryContextDataResult, maxBitrate int) bool {
	if maxBitrate <= 0 {
		return true
	}
	flavorIDs := src.FlavorIDList()
	if len(flavorIDs) == 0 {
		return true
	}
	for _, id := range flavorIDs {
		flavor, ok := contextData.FlavorByID(id)
		if !ok || int(flavor.Bitrate) <= maxBitrate {
			return true
		}
	}
	return false
}

func sourcesFromFlavors(entry *ovp.MediaEntry, contextData *ovp.EntryContextDataResult, maxBitrate int) []media.MediaSource {
	if contextData == nil {
		return nil
	}

	var flavorIDs []string
	for _, paramsID := range entry.FlavorParamsIDList() {
		if paramsID == 0 {
			flavorIDs = append(flavorIDs, sourceFlavorID)
			continue
		}
		flavor, ok := contextData.FlavorByParamsID(paramsID)
		if !ok {
			continue
		}
		if maxBitrate > 0 && int(flavor.Bitrate) > maxBitrate {
			continue
		}
		flavorIDs = append(flavorIDs, flavor.ID)
	}
	if len(flavorIDs) == 0 {
		return nil
	}

	return []media.MediaSource{{
		ID:     entry.ID,
		URL:    flavoredURL(entry.DataURL, flavorIDs),
		Format: media.FormatFromURL(entry.DataURL),
	}}
}

func flavoredURL(dataURL string, flavorIDs []string) string {
	if dataURL == "" {
		return dataURL
	}
	return dataURL + "/flavorIds/" + strings.Join(flavorIDs, ",")
}

type idSet map[string]int

func newIDSet() idSet { return make(idSet) }

// unique returns id, or id with a numeric suffix when it was already handed out.
func (s idSet) unique(id string) string {
	n := s[id]
	s[id] = n + 1
	if n == 0 {
		return id
	}
	for {
		candidate := fmt.Sprintf("%s_%d", id, n+1)
		if _, taken := s[candidate]; !taken {
			s[candidate] = 1
			return candidate
		}
		n++
	}
}
