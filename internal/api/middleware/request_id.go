// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"regexp"

	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/google/uuid"
)

const (
	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"
	// HeaderCorrelationID ties a request to a wider client operation, such as
	// one playback start spanning entry, adapt and probe calls.
	HeaderCorrelationID = "X-Correlation-ID"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID adds a unique ID to every request. A well-formed incoming ID is kept.
// The correlation ID is taken from the client when well-formed and otherwise
// defaults to the request ID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(reqID) {
			reqID = uuid.New().String()
		}
		corrID := r.Header.Get(HeaderCorrelationID)
		if !validRequestID.MatchString(corrID) {
			corrID = reqID
		}
		w.Header().Set(HeaderRequestID, reqID)
		w.Header().Set(HeaderCorrelationID, corrID)
		ctx := xglog.ContextWithRequestID(r.Context(), reqID)
		ctx = xglog.ContextWithCorrelationID(ctx, corrID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
