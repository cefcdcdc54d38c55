// Package ovp is a client for the Kaltura OVP api_v3 JSON API.
package ovp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/ManuGH/playkit/internal/platform/httpx"
	"github.com/ManuGH/playkit/internal/telemetry"
	"github.com/ManuGH/playkit/internal/version"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	multirequestPath = "/api_v3/service/multirequest"
	apiVersion       = "3.3.0"
	maxResponseBytes = 8 << 20
)

// Call is one sub-request of a multirequest.
type Call struct {
	Service string
	Action  string
	Params  map[string]any
}

// Client talks to an OVP backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	clientTag  string
	userAgent  string
	logger     zerolog.Logger
	rnd        *rand.Rand
	mu         sync.Mutex
}

// Options configures the client behavior.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
	ClientTag      string
	UserAgent      string
	HTTPClient     *http.Client
}

const (
	defaultTimeout        = 10 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultRateLimit      = 10
	defaultRateLimitBurst = 20
)

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	nopts := normalizeOptions(opts)
	httpClient := nopts.HTTPClient
	if httpClient == nil {
		httpClient = httpx.NewClient(nopts.Timeout)
	}
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: httpClient,
		limiter:    rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		clientTag:  nopts.ClientTag,
		userAgent:  nopts.UserAgent,
		logger:     xglog.WithComponent("ovp"),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	// Negative disables retries; zero selects the default.
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.ClientTag) == "" {
		opts.ClientTag = version.ClientTag()
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "playkit/" + version.Version
	}
	return opts
}

// Multirequest sends calls as one multirequest and returns one raw element per call.
// Later calls may reference earlier results with tokens such as "{1:result:objects:0:id}".
func (c *Client) Multirequest(ctx context.Context, ks string, calls ...Call) ([]json.RawMessage, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: empty multirequest", ErrBadRequest)
	}

	body, err := c.multirequestBody(ks, calls)
	if err != nil {
		return nil, fmt.Errorf("%w: encode multirequest: %v", ErrBadRequest, err)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", ErrBadRequest, c.BaseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + multirequestPath
	u.RawQuery = url.Values{"format": {"1"}}.Encode()

	op := callNames(calls)
	ctx, span := telemetry.Tracer("playkit.ovp").Start(ctx, "ovp.multirequest", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String(telemetry.OVPCallsKey, op))
	defer span.End()

	resp, err := c.doPost(ctx, u.String(), body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, wrapError(op, err, resp.StatusCode, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, wrapError(op, nil, resp.StatusCode, data)
	}

	elements, err := decodeMultiresponse(data, len(calls))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return elements, nil
}

func (c *Client) multirequestBody(ks string, calls []Call) ([]byte, error) {
	payload := map[string]any{
		"format":     1,
		"apiVersion": apiVersion,
		"clientTag":  c.clientTag,
	}
	if ks != "" {
		payload["ks"] = ks
	}
	for i, call := range calls {
		sub := make(map[string]any, len(call.Params)+2)
		for k, v := range call.Params {
			sub[k] = v
		}
		sub["service"] = call.Service
		sub["action"] = call.Action
		payload[strconv.Itoa(i+1)] = sub
	}
	return json.Marshal(payload)
}

// decodeMultiresponse splits the response array. A top-level exception object
// (e.g. an invalid KS for the whole request) fails every call.
func decodeMultiresponse(data []byte, calls int) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var apiErr APIError
		if err := json.Unmarshal(trimmed, &apiErr); err == nil && apiErr.ObjectType == ObjectTypeAPIException {
			return nil, fmt.Errorf("%w: %w", ErrLoad, &apiErr)
		}
		return nil, fmt.Errorf("%w: expected a response array", ErrBadResponse)
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(elements) != calls {
		return nil, fmt.Errorf("%w: got %d results for %d calls", ErrBadResponse, len(elements), calls)
	}
	return elements, nil
}

func (c *Client) doPost(ctx context.Context, rawURL string, body []byte) (*http.Response, error) {
	tracer := telemetry.Tracer("playkit.ovp")
	route, urlLabel := traceLabels(rawURL)
	logger := xglog.WithContext(ctx, c.logger)

	maxAttempts := c.maxRetries + 1
	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, attemptSpan := tracer.Start(ctx, "ovp.request.attempt", trace.WithSpanKind(trace.SpanKindClient))
		attemptSpan.SetAttributes(
			attribute.Int("attempt", attempt),
			attribute.Bool("retry", attempt > 1),
		)

		if c.limiter != nil {
			if err := c.limiter.Wait(attemptCtx); err != nil {
				attemptSpan.RecordError(err)
				attemptSpan.End()
				return nil, wrapError(route, err, 0, nil)
			}
		}

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, rawURL, bytes.NewReader(body))
		if err != nil {
			attemptSpan.RecordError(err)
			attemptSpan.End()
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		c.applyHeaders(req)
		otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

		start := time.Now()
		resp, err := c.HTTPClient.Do(req)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		retry := attempt < maxAttempts && shouldRetry(ctx, resp, err)
		recordAttemptMetrics(http.MethodPost, route, status, duration, err, retry)

		attemptSpan.SetAttributes(telemetry.HTTPAttributes(http.MethodPost, route, urlLabel, status)...)
		if err != nil {
			attemptSpan.RecordError(err)
		}
		if err != nil || status >= http.StatusBadRequest {
			attemptSpan.SetStatus(codes.Error, statusText(status))
		} else {
			attemptSpan.SetStatus(codes.Ok, "")
		}
		attemptSpan.End()

		if err == nil && status < http.StatusInternalServerError {
			return resp, nil
		}

		var errBody []byte
		if resp != nil {
			errBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		lastErr = wrapError(route, err, status, errBody)
		lastStatus = status

		if !retry {
			break
		}

		wait := c.backoffFor(attempt - 1)
		logger.Debug().
			Str(xglog.FieldEvent, "ovp.retry").
			Int(xglog.FieldAttempt, attempt).
			Int("status", status).
			Dur("wait", wait).
			Msg("retrying OVP request")
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, wrapError(route, err, lastStatus, nil)
		}
	}

	logger.Warn().
		Err(lastErr).
		Str(xglog.FieldEvent, "ovp.request_failed").
		Int("status", lastStatus).
		Int("attempts", maxAttempts).
		Msg("OVP request failed")
	return nil, lastErr
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if rid := xglog.RequestIDFromContext(req.Context()); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	if cid := xglog.CorrelationIDFromContext(req.Context()); cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}
}

func shouldRetry(ctx context.Context, resp *http.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp == nil || resp.StatusCode >= http.StatusInternalServerError
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func traceLabels(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, rawURL
	}
	route := u.Path
	if route == "" {
		route = "/"
	}
	urlLabel := route
	if u.RawQuery != "" {
		urlLabel += "?"
	}
	return route, urlLabel
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}

func callNames(calls []Call) string {
	names := make([]string, len(calls))
	for i, call := range calls {
		names[i] = call.Service + "." + call.Action
	}
	return strings.Join(names, ",")
}
