// SPDX-License-Identifier: MIT
package ovp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockServer is a configurable OVP backend for tests. It answers the
// entry-info multirequest from registered entries.
type MockServer struct {
	*httptest.Server
	mu       sync.RWMutex
	entries  map[string]MockEntry
	validKS  string
	delay    time.Duration
	failures int
	requests []map[string]json.RawMessage
}

// MockEntry is the backend data for one entry. A non-nil ListError or
// ContextError replaces the corresponding element with an exception.
type MockEntry struct {
	Entry        MediaEntry
	Context      EntryContextDataResult
	ListError    *APIError
	ContextError *APIError
}

// NewMockServer starts a mock OVP backend accepting the given KS ("" accepts any).
func NewMockServer(validKS string) *MockServer {
	m := &MockServer{
		entries: make(map[string]MockEntry),
		validKS: validKS,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api_v3/service/multirequest", m.handleMultirequest)
	m.Server = httptest.NewServer(mux)
	return m
}

// AddEntry registers an entry.
func (m *MockServer) AddEntry(e MockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Entry.ID] = e
}

// SetFailures makes the next n requests fail with HTTP 503.
func (m *MockServer) SetFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// SetDelay delays every response.
func (m *MockServer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Requests returns the decoded bodies received so far.
func (m *MockServer) Requests() []map[string]json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]json.RawMessage, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockServer) handleMultirequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, _ := io.ReadAll(r.Body)
	var req map[string]json.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	delay := m.delay
	fail := m.failures > 0
	if fail {
		m.failures--
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fail {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var ks string
	_ = json.Unmarshal(req["ks"], &ks)
	if m.validKS != "" && ks != m.validKS {
		_ = json.NewEncoder(w).Encode(APIError{
			ObjectType: ObjectTypeAPIException,
			Code:       "INVALID_KS",
			Message:    "Invalid KS",
		})
		return
	}

	var list struct {
		Filter struct {
			RedirectFromEntryID string `json:"redirectFromEntryId"`
		} `json:"filter"`
	}
	_ = json.Unmarshal(req["1"], &list)
	entryID := strings.TrimSpace(list.Filter.RedirectFromEntryID)

	m.mu.RLock()
	entry, ok := m.entries[entryID]
	m.mu.RUnlock()

	var results []any
	switch {
	case !ok:
		results = []any{
			BaseEntryListResponse{ObjectType: ObjectTypeBaseEntryList, Objects: []MediaEntry{}},
			APIError{ObjectType: ObjectTypeAPIException, Code: "ENTRY_ID_NOT_FOUND", Message: "Entry id \"" + entryID + "\" not found"},
		}
	default:
		var first, second any
		if entry.ListError != nil {
			first = apiException(entry.ListError)
		} else {
			first = BaseEntryListResponse{ObjectType: ObjectTypeBaseEntryList, Objects: []MediaEntry{entry.Entry}, TotalCount: 1}
		}
		if entry.ContextError != nil {
			second = apiException(entry.ContextError)
		} else {
			ctxData := entry.Context
			ctxData.ObjectType = ObjectTypeEntryContextData
			second = ctxData
		}
		results = []any{first, second}
	}
	_ = json.NewEncoder(w).Encode(results)
}

func apiException(e *APIError) APIError {
	out := *e
	out.ObjectType = ObjectTypeAPIException
	return out
}
