package ovp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrBadRequest  = errors.New("ovp: bad request")
	ErrLoad        = errors.New("ovp: load failed")
	ErrNotFound    = errors.New("ovp: entry not found")
	ErrForbidden   = errors.New("ovp: access forbidden")
	ErrUnavailable = errors.New("ovp: host unreachable or transport failure")
	ErrUpstream    = errors.New("ovp: internal error (5xx)")
	ErrBadResponse = errors.New("ovp: invalid response format or malformed data")
	ErrTimeout     = errors.New("ovp: request timed out")
)

// OVPError wraps a sentinel with transport context.
type OVPError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *OVPError) Error() string {
	msg := fmt.Sprintf("ovp: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OVPError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Sentinel, e.Err}
	}
	return []error{e.Sentinel}
}

// APIError is a KalturaAPIException returned inside a response element.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ObjectType string `json:"objectType"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is maps well-known API codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return strings.HasSuffix(e.Code, "_NOT_FOUND")
	case ErrForbidden:
		switch e.Code {
		case "INVALID_KS", "EXPIRED_KS", "SERVICE_FORBIDDEN", "SERVICE_FORBIDDEN_CONTENT_BLOCKED", "INVALID_PARTNER_ID":
			return true
		}
	}
	return false
}

const maxErrorBody = 256

var secretPattern = regexp.MustCompile(`(?i)\b(ks|token|sid|password|secret)=([^\s&"']+)`)

func redact(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}

// wrapError classifies a transport failure or HTTP status into an *OVPError.
func wrapError(op string, err error, status int, body []byte) error {
	sentinel := ErrUnavailable
	switch {
	case err != nil && isTimeout(err):
		sentinel = ErrTimeout
	case err != nil:
		sentinel = ErrUnavailable
	case status == http.StatusNotFound:
		sentinel = ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = ErrForbidden
	case status >= http.StatusInternalServerError:
		sentinel = ErrUpstream
	case status >= http.StatusBadRequest:
		sentinel = ErrBadResponse
	}
	return &OVPError{
		Sentinel:  sentinel,
		Operation: op,
		Status:    status,
		Body:      redact(body),
		Err:       err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
