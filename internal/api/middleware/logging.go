// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"time"

	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request with status and latency.
// Server errors log at error level, client errors at warn, the rest at debug.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)

		logger := xglog.WithComponentFromContext(r.Context(), "http")
		var evt *zerolog.Event
		switch {
		case sw.status >= http.StatusInternalServerError:
			evt = logger.Error()
		case sw.status >= http.StatusBadRequest:
			evt = logger.Warn()
		default:
			evt = logger.Debug()
		}
		evt.
			Str(xglog.FieldEvent, "http.request").
			Str("method", r.Method).
			Str(xglog.FieldPath, r.URL.Path).
			Str("route", routePattern(r)).
			Int("status", sw.status).
			Int("bytes", sw.bytes).
			Dur("latency", time.Since(start)).
			Str("trace_id", TraceID(r)).
			Msg("request handled")
	})
}
