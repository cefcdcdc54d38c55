// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/playkit/internal/api/middleware"
	"github.com/ManuGH/playkit/internal/drm"
	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/ovp"
	"github.com/ManuGH/playkit/internal/platform/fs"
)

// Problem codes.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeTimeout         = "UPSTREAM_TIMEOUT"
	CodeUpstream        = "UPSTREAM_ERROR"
	CodeInvalidManifest = "INVALID_MANIFEST"
	CodeInternal        = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem writes an RFC 7807 problem details response.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	res := map[string]any{
		"type":   "about:blank",
		"title":  http.StatusText(status),
		"status": status,
		"code":   code,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if r != nil {
		res["instance"] = r.URL.EscapedPath()
		if reqID := xglog.RequestIDFromContext(r.Context()); reqID != "" {
			res["requestId"] = reqID
		}
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logger := xglog.WithComponent("api")
		logger.Error().Err(err).Int("status", status).Msg("failed to encode problem response")
	}
}

// classify maps domain errors onto an HTTP status and problem code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ovp.ErrBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, ovp.ErrNotFound), errors.Is(err, drm.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ovp.ErrForbidden), errors.Is(err, fs.ErrEscapesRoot), errors.Is(err, errLocationDenied):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, ovp.ErrTimeout):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, drm.ErrInvalidManifest), errors.Is(err, drm.ErrInvalidMedia):
		return http.StatusUnprocessableEntity, CodeInvalidManifest
	case errors.Is(err, ovp.ErrLoad), errors.Is(err, ovp.ErrUpstream),
		errors.Is(err, ovp.ErrUnavailable), errors.Is(err, ovp.ErrBadResponse),
		errors.Is(err, drm.ErrFetch):
		return http.StatusBadGateway, CodeUpstream
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError classifies err and writes it as a problem. Server-side failures
// are logged; their detail is not exposed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	detail := err.Error()
	logger := xglog.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str(xglog.FieldEvent, "api.request_failed").Int("status", status).Str("trace_id", middleware.TraceID(r)).Msg("request failed")
		if status == http.StatusInternalServerError {
			detail = ""
		}
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeProblem(w, r, status, code, detail)
}
