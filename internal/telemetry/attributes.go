// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// OVP attributes
	OVPServiceKey   = "ovp.service"
	OVPActionKey    = "ovp.action"
	OVPEntryIDKey   = "ovp.entry_id"
	OVPPartnerIDKey = "ovp.partner_id"
	OVPCallsKey     = "ovp.calls"

	// DRM probe attributes
	DRMManifestKey     = "drm.manifest"
	DRMProtectedKey    = "drm.content_protection"
	DRMWidevineKey     = "drm.widevine_pssh"
	DRMRepresentation  = "drm.representation_id"
	DRMInitSegmentSize = "drm.init_bytes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// OVPCallAttributes describes a single multirequest sub-call.
func OVPCallAttributes(service, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(OVPServiceKey, service),
		attribute.String(OVPActionKey, action),
	}
}

// EntryAttributes tags a span with the entry being resolved. Empty values are skipped.
func EntryAttributes(entryID string, partnerID int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if entryID != "" {
		attrs = append(attrs, attribute.String(OVPEntryIDKey, entryID))
	}
	if partnerID > 0 {
		attrs = append(attrs, attribute.Int(OVPPartnerIDKey, partnerID))
	}
	return attrs
}

// ProbeAttributes summarises a DRM probe outcome.
func ProbeAttributes(manifest, representationID string, protected, widevine bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DRMManifestKey, manifest),
		attribute.String(DRMRepresentation, representationID),
		attribute.Bool(DRMProtectedKey, protected),
		attribute.Bool(DRMWidevineKey, widevine),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
