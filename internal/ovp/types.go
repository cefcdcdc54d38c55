package ovp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Object types used to dispatch response elements.
const (
	ObjectTypeAPIException      = "KalturaAPIException"
	ObjectTypeBaseEntryList     = "KalturaBaseEntryListResponse"
	ObjectTypeEntryContextData  = "KalturaEntryContextDataResult"
	ObjectTypeContextDataParams = "KalturaEntryContextDataParams"
)

// FlexInt decodes integers sent either as JSON numbers or numeric strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*f = 0
			return nil
		}
		b = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("ovp: invalid integer %q", b)
	}
	*f = FlexInt(n)
	return nil
}

// BaseEntryListResponse is the result of baseEntry.list.
type BaseEntryListResponse struct {
	ObjectType string       `json:"objectType"`
	Objects    []MediaEntry `json:"objects"`
	TotalCount FlexInt      `json:"totalCount"`
}

// MediaEntry is the subset of KalturaMediaEntry the provider needs.
type MediaEntry struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	DataURL         string  `json:"dataUrl"`
	Duration        FlexInt `json:"duration"`
	MsDuration      FlexInt `json:"msDuration"`
	FlavorParamsIDs string  `json:"flavorParamsIds"`
	MediaType       FlexInt `json:"mediaType"`
	Type            FlexInt `json:"type"`
}

// FlavorParamsIDList parses the comma separated flavorParamsIds. Invalid items are skipped.
func (e *MediaEntry) FlavorParamsIDList() []int {
	if strings.TrimSpace(e.FlavorParamsIDs) == "" {
		return nil
	}
	parts := strings.Split(e.FlavorParamsIDs, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// MediaTypeName maps the numeric KalturaMediaType.
func (e *MediaEntry) MediaTypeName() string {
	switch e.MediaType {
	case 1:
		return "video"
	case 2:
		return "image"
	case 5:
		return "audio"
	case 201, 202, 203, 204:
		return "live"
	}
	return ""
}

// EntryContextDataResult is the result of baseEntry.getContextData.
type EntryContextDataResult struct {
	ObjectType            string        `json:"objectType"`
	FlavorAssets          []FlavorAsset `json:"flavorAssets"`
	Sources               []Source      `json:"sources"`
	IsSiteRestricted      bool          `json:"isSiteRestricted"`
	IsCountryRestricted   bool          `json:"isCountryRestricted"`
	IsSessionRestricted   bool          `json:"isSessionRestricted"`
	IsIPAddressRestricted bool          `json:"isIpAddressRestricted"`
	IsScheduledNow        *bool         `json:"isScheduledNow"`
}

// FlavorByParamsID returns the flavor asset produced by the given flavor params.
func (c *EntryContextDataResult) FlavorByParamsID(id int) (*FlavorAsset, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.FlavorAssets {
		if int(c.FlavorAssets[i].FlavorParamsID) == id {
			return &c.FlavorAssets[i], true
		}
	}
	return nil, false
}

// FlavorByID returns the flavor asset with the given asset id.
func (c *EntryContextDataResult) FlavorByID(id string) (*FlavorAsset, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.FlavorAssets {
		if c.FlavorAssets[i].ID == id {
			return &c.FlavorAssets[i], true
		}
	}
	return nil, false
}

// Restricted reports whether any access control rule blocks playback.
func (c *EntryContextDataResult) Restricted() bool {
	if c == nil {
		return false
	}
	scheduled := c.IsScheduledNow == nil || *c.IsScheduledNow
	return c.IsSiteRestricted || c.IsCountryRestricted || c.IsSessionRestricted || c.IsIPAddressRestricted || !scheduled
}

// FlavorAsset is a transcoded rendition of an entry.
type FlavorAsset struct {
	ID             string  `json:"id"`
	FlavorParamsID FlexInt `json:"flavorParamsId"`
	FileExt        string  `json:"fileExt"`
	Bitrate        FlexInt `json:"bitrate"`
	Width          FlexInt `json:"width"`
	Height         FlexInt `json:"height"`
	IsOriginal     bool    `json:"isOriginal"`
}

// Source is a playback source exposed by the context data.
type Source struct {
	ID                string      `json:"id"`
	DeliveryProfileID FlexInt     `json:"deliveryProfileId"`
	Format            string      `json:"format"`
	Protocols         string      `json:"protocols"`
	FlavorIDs         string      `json:"flavorIds"`
	URL               string      `json:"url"`
	DRM               []SourceDRM `json:"drm"`
}

// FlavorIDList splits the comma separated flavor asset ids.
func (s *Source) FlavorIDList() []string {
	if strings.TrimSpace(s.FlavorIDs) == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(s.FlavorIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// SourceDRM is one DRM configuration of a source.
type SourceDRM struct {
	Scheme     string `json:"scheme"`
	LicenseURL string `json:"licenseURL"`
}

type objectHeader struct {
	ObjectType string `json:"objectType"`
}

// ParseResult decodes one response element into v. Elements carrying a
// KalturaAPIException are returned as *APIError.
func ParseResult(raw json.RawMessage, v any) error {
	var hdr objectHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if hdr.ObjectType == ObjectTypeAPIException {
		apiErr := &APIError{}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			return fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		return apiErr
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
