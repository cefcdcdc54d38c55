// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fs confines user supplied paths to a root directory.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path resolves outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins a relative target onto root and returns the resolved
// absolute path. Traversal and symlink escapes are rejected. The target may not
// exist yet, but its parent directory must.
func ConfineRelPath(root, target string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(target))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("path must be relative: %s", target)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, target)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return confine(absRoot, filepath.Join(absRoot, clean))
}

// ConfineAbsPath checks that an absolute target lies under root after symlink
// resolution and returns the resolved path.
func ConfineAbsPath(root, target string) (string, error) {
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("path must be absolute: %s", target)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return confine(absRoot, filepath.Clean(target))
}

func confine(absRoot, full string) (string, error) {
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(full)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		dir, derr := filepath.EvalSymlinks(filepath.Dir(full))
		if derr != nil {
			return "", fmt.Errorf("resolve parent: %w", derr)
		}
		resolved = filepath.Join(dir, filepath.Base(full))
	default:
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(realRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, full)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, full)
	}
	return resolved, nil
}
