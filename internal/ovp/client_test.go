package ovp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	xglog "github.com/ManuGH/playkit/internal/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKS = "djJ8MjIxNTg0MXx0ZXN0"

func fastOptions() Options {
	return Options{
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		RateLimit:  1000,
		ClientTag:  "playkit-test",
	}
}

func sampleEntry() MockEntry {
	return MockEntry{
		Entry: MediaEntry{
			ID:              "1_1h1vsv3z",
			Name:            "Sintel",
			DataURL:         "http://cdnapi.kaltura.com/p/2209591/sp/0/playManifest/entryId/1_1h1vsv3z/format/url/protocol/http/a.mp4",
			MsDuration:      102000,
			FlavorParamsIDs: "0,487041,487051",
			MediaType:       1,
		},
		Context: EntryContextDataResult{
			FlavorAssets: []FlavorAsset{
				{ID: "1_ude4l5pb", FlavorParamsID: 487041, Bitrate: 400},
				{ID: "1_izgi81qa", FlavorParamsID: 487051, Bitrate: 900},
			},
		},
	}
}

func TestClient_EntryInfo(t *testing.T) {
	mock := NewMockServer(testKS)
	defer mock.Close()
	mock.AddEntry(sampleEntry())

	c := NewClient(mock.URL, fastOptions())
	info, err := c.EntryInfo(context.Background(), testKS, "1_1h1vsv3z")
	require.NoError(t, err)

	require.NoError(t, info.ListErr)
	require.NoError(t, info.ContextErr)
	require.Len(t, info.List.Objects, 1)
	assert.Equal(t, "Sintel", info.List.Objects[0].Name)
	assert.Equal(t, FlexInt(102000), info.List.Objects[0].MsDuration)
	assert.Len(t, info.Context.FlavorAssets, 2)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	var ks, tag string
	require.NoError(t, json.Unmarshal(reqs[0]["ks"], &ks))
	require.NoError(t, json.Unmarshal(reqs[0]["clientTag"], &tag))
	assert.Equal(t, testKS, ks)
	assert.Equal(t, "playkit-test", tag)

	var second map[string]any
	require.NoError(t, json.Unmarshal(reqs[0]["2"], &second))
	assert.Equal(t, "baseEntry", second["service"])
	assert.Equal(t, "getContextData", second["action"])
	assert.Equal(t, "{1:result:objects:0:id}", second["entryId"])
}

func TestClient_EntryInfo_PerCallErrors(t *testing.T) {
	mock := NewMockServer("")
	defer mock.Close()

	e := sampleEntry()
	e.ContextError = &APIError{Code: "SERVICE_FORBIDDEN", Message: "forbidden"}
	mock.AddEntry(e)

	info, err := NewClient(mock.URL, fastOptions()).EntryInfo(context.Background(), testKS, e.Entry.ID)
	require.NoError(t, err)
	require.NotNil(t, info.List)
	assert.Nil(t, info.Context)
	assert.ErrorIs(t, info.ContextErr, ErrForbidden)
}

func TestClient_EntryInfo_UnknownEntry(t *testing.T) {
	mock := NewMockServer("")
	defer mock.Close()

	info, err := NewClient(mock.URL, fastOptions()).EntryInfo(context.Background(), testKS, "0_missing")
	require.NoError(t, err)
	require.NotNil(t, info.List)
	assert.Empty(t, info.List.Objects)
	assert.ErrorIs(t, info.ContextErr, ErrNotFound)
}

func TestClient_InvalidKSFailsWholeRequest(t *testing.T) {
	mock := NewMockServer(testKS)
	defer mock.Close()
	mock.AddEntry(sampleEntry())

	_, err := NewClient(mock.URL, fastOptions()).EntryInfo(context.Background(), "wrong", "1_1h1vsv3z")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, ErrForbidden)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INVALID_KS", apiErr.Code)
}

func TestClient_RetriesOn5xx(t *testing.T) {
	mock := NewMockServer("")
	defer mock.Close()
	mock.AddEntry(sampleEntry())
	mock.SetFailures(2)

	before := testutil.ToFloat64(requestRetries.WithLabelValues(http.MethodPost, multirequestPath, "5xx"))

	info, err := NewClient(mock.URL, fastOptions()).EntryInfo(context.Background(), testKS, "1_1h1vsv3z")
	require.NoError(t, err)
	assert.NotNil(t, info.List)
	assert.Len(t, mock.Requests(), 3)

	after := testutil.ToFloat64(requestRetries.WithLabelValues(http.MethodPost, multirequestPath, "5xx"))
	assert.Equal(t, 2.0, after-before)
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	mock := NewMockServer("")
	defer mock.Close()
	mock.SetFailures(10)

	_, err := NewClient(mock.URL, fastOptions()).EntryInfo(context.Background(), testKS, "1_1h1vsv3z")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)

	var ovpErr *OVPError
	require.True(t, errors.As(err, &ovpErr))
	assert.Equal(t, http.StatusServiceUnavailable, ovpErr.Status)
	assert.Len(t, mock.Requests(), 3)
}

func TestClient_Timeout(t *testing.T) {
	mock := NewMockServer("")
	defer mock.Close()
	mock.SetDelay(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(mock.URL, fastOptions()).EntryInfo(ctx, testKS, "1_1h1vsv3z")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, mock.Requests(), 1, "an expired context must not be retried")
}

func TestClient_MalformedResponse(t *testing.T) {
	cases := map[string]string{
		"not json":     `<html>oops</html>`,
		"wrong count":  `[{"objectType":"KalturaBaseEntryListResponse","objects":[]}]`,
		"plain object": `{"objectType":"KalturaBaseEntryListResponse"}`,
		"bad element":  `[{"objectType":"KalturaBaseEntryListResponse","objects":"nope"},{}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, fastOptions()).EntryInfo(context.Background(), testKS, "1_x")
			assert.ErrorIs(t, err, ErrBadResponse)
		})
	}
}

func TestClient_ForwardsTraceIDs(t *testing.T) {
	headers := make(chan http.Header, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = w.Write([]byte(`[{"objectType":"KalturaBaseEntryListResponse","objects":[]},{"objectType":"KalturaEntryContextDataResult"}]`))
	}))
	defer srv.Close()

	ctx := xglog.ContextWithRequestID(context.Background(), "req-1")
	ctx = xglog.ContextWithCorrelationID(ctx, "playback-9")
	_, _ = NewClient(srv.URL, fastOptions()).EntryInfo(ctx, testKS, "1_x")

	got := <-headers
	assert.Equal(t, "req-1", got.Get("X-Request-ID"))
	assert.Equal(t, "playback-9", got.Get("X-Correlation-ID"))
}

func TestClient_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden ks=secretvalue", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, fastOptions()).EntryInfo(context.Background(), testKS, "1_x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotContains(t, err.Error(), "secretvalue")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_EmptyMultirequest(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", fastOptions()).Multirequest(context.Background(), testKS)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestNormalizeOptions(t *testing.T) {
	opts := normalizeOptions(Options{MaxRetries: -1})
	assert.Equal(t, 0, opts.MaxRetries)
	assert.Equal(t, defaultTimeout, opts.Timeout)
	assert.NotEmpty(t, opts.ClientTag)

	opts = normalizeOptions(Options{})
	assert.Equal(t, defaultRetries, opts.MaxRetries)
}

func TestBackoffFor_Capped(t *testing.T) {
	c := NewClient("http://example.com", Options{Backoff: 100 * time.Millisecond, MaxBackoff: 150 * time.Millisecond})
	for i := 0; i < 5; i++ {
		wait := c.backoffFor(i)
		assert.LessOrEqual(t, wait, 150*time.Millisecond+30*time.Millisecond)
		assert.GreaterOrEqual(t, wait, 100*time.Millisecond)
	}
}
