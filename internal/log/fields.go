// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldSessionID     = "play_session_id"
	FieldEntryID       = "entry_id"
	FieldPartnerID     = "partner_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldAttempt   = "attempt"

	// Media fields
	FieldFormat         = "format"
	FieldSources        = "sources"
	FieldRepresentation = "representation_id"
	FieldScheme         = "drm_scheme"

	// Path / URL fields
	FieldPath     = "path"
	FieldBaseURL  = "base_url"
	FieldManifest = "manifest"
	FieldInitURI  = "init_uri"
)
