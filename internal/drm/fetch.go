// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package drm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/playkit/internal/platform/fs"
	"github.com/ManuGH/playkit/internal/platform/httpx"
)

// maxFetchBytes caps manifests and init chunks.
const maxFetchBytes = 16 << 20

// Fetcher loads a manifest or a byte range of a media file. byteRange uses the
// DASH "first-last" form; empty means the whole resource.
type Fetcher interface {
	Fetch(ctx context.Context, location, byteRange string) ([]byte, error)
}

// byteRange is an inclusive range; last < 0 means open ended.
type byteRange struct {
	first, last int64
}

func parseByteRange(s string) (*byteRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	firstStr, lastStr, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("invalid byte range %q", s)
	}
	first, err := strconv.ParseInt(strings.TrimSpace(firstStr), 10, 64)
	if err != nil || first < 0 {
		return nil, fmt.Errorf("invalid byte range %q", s)
	}
	r := &byteRange{first: first, last: -1}
	if lastStr = strings.TrimSpace(lastStr); lastStr != "" {
		last, err := strconv.ParseInt(lastStr, 10, 64)
		if err != nil || last < first {
			return nil, fmt.Errorf("invalid byte range %q", s)
		}
		r.last = last
	}
	return r, nil
}

func (r *byteRange) header() string {
	if r.last < 0 {
		return fmt.Sprintf("bytes=%d-", r.first)
	}
	return fmt.Sprintf("bytes=%d-%d", r.first, r.last)
}

func (r *byteRange) length() int64 {
	if r.last < 0 {
		return maxFetchBytes
	}
	return r.last - r.first + 1
}

// slice cuts the range out of a complete body.
func (r *byteRange) slice(data []byte) []byte {
	if r.first >= int64(len(data)) {
		return nil
	}
	end := int64(len(data))
	if r.last >= 0 && r.last+1 < end {
		end = r.last + 1
	}
	return data[r.first:end]
}

// FileFetcher reads local files given as plain paths or file:// URLs.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, location, rangeSpec string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := localPath(location)
	if err != nil {
		return nil, err
	}
	br, err := parseByteRange(rangeSpec)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 -- callers confine locations
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	limit := int64(maxFetchBytes)
	if br != nil {
		if _, err := f.Seek(br.first, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		limit = min(limit, br.length())
	}
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return data, nil
}

// ConfinedFileFetcher reads local files that resolve under Root, including
// init chunks a manifest points at through BaseURL or segment templates.
// Anything else fails with fs.ErrEscapesRoot. An empty Root refuses all reads.
type ConfinedFileFetcher struct {
	Root string
}

func (c ConfinedFileFetcher) Fetch(ctx context.Context, location, rangeSpec string) ([]byte, error) {
	path, err := localPath(location)
	if err != nil {
		return nil, err
	}
	if c.Root == "" {
		return nil, fmt.Errorf("%w: no root configured: %s", fs.ErrEscapesRoot, location)
	}
	if !c.lexicallyWithin(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrEscapesRoot, location)
	}
	confined, err := fs.ConfineAbsPath(c.Root, path)
	if err != nil {
		if errors.Is(err, fs.ErrEscapesRoot) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	return FileFetcher{}.Fetch(ctx, confined, rangeSpec)
}

// lexicallyWithin rejects paths outside the root before touching the disk, so
// missing files elsewhere are indistinguishable from existing ones.
func (c ConfinedFileFetcher) lexicallyWithin(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	path = filepath.Clean(path)
	roots := []string{}
	if abs, err := filepath.Abs(c.Root); err == nil {
		roots = append(roots, abs)
	}
	if resolved, err := filepath.EvalSymlinks(c.Root); err == nil {
		roots = append(roots, resolved)
	}
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func localPath(location string) (string, error) {
	if !strings.HasPrefix(location, "file:") {
		return location, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return u.Path, nil
}

// HTTPFetcher fetches over HTTP(S), using Range requests for byte ranges.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a traced fetcher with the given timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: httpx.NewTracedClient(timeout, "drm.fetch")}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, location, rangeSpec string) ([]byte, error) {
	br, err := parseByteRange(rangeSpec)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if br != nil {
		req.Header.Set("Range", br.header())
	}

	client := f.Client
	if client == nil {
		client = httpx.NewClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	default:
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrFetch, location, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	// Servers may ignore Range and send the full body.
	if br != nil && resp.StatusCode == http.StatusOK {
		data = br.slice(data)
	}
	return data, nil
}

// MultiFetcher dispatches on the location scheme.
type MultiFetcher struct {
	File Fetcher
	HTTP Fetcher
}

// NewMultiFetcher returns a fetcher for local files and, when allowRemote is
// set, http(s) URLs.
func NewMultiFetcher(timeout time.Duration, allowRemote bool) *MultiFetcher {
	m := &MultiFetcher{File: FileFetcher{}}
	if allowRemote {
		m.HTTP = NewHTTPFetcher(timeout)
	}
	return m
}

func (m *MultiFetcher) Fetch(ctx context.Context, location, rangeSpec string) ([]byte, error) {
	if isRemote(location) {
		if m.HTTP == nil {
			return nil, fmt.Errorf("%w: remote locations are disabled: %s", ErrFetch, location)
		}
		return m.HTTP.Fetch(ctx, location, rangeSpec)
	}
	if m.File == nil {
		return nil, fmt.Errorf("%w: local locations are disabled: %s", ErrFetch, location)
	}
	return m.File.Fetch(ctx, location, rangeSpec)
}

func isRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
