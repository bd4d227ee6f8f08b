// Package entrypoints turns configured input paths into absolute, normalized
// source locations.
package entrypoints

import (
	"fmt"
	"path/filepath"

	"github.com/fluxbase-eu/officefn/internal/config"
)

// Resolve returns the absolute, cleaned form of each input path, in input
// order. Relative paths are resolved against root; absolute paths are only
// cleaned. Duplicates supplied by the caller are preserved.
func Resolve(input []string, root string) ([]string, error) {
	if len(input) == 0 {
		return nil, config.ErrMissingInput
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root %q: %w", root, err)
	}

	resolved := make([]string, len(input))
	for i, p := range input {
		if p == "" {
			return nil, fmt.Errorf("%w: entry %d is empty", config.ErrMissingInput, i)
		}
		if filepath.IsAbs(p) {
			resolved[i] = filepath.Clean(p)
			continue
		}
		resolved[i] = filepath.Join(absRoot, p)
	}

	return resolved, nil
}

// Normalize cleans a path the same way Resolve does so that watcher events
// and entry points compare byte-for-byte
func Normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Contains reports whether path names one of the resolved entry points
func Contains(entries []string, path string) bool {
	normalized := Normalize(path)
	for _, entry := range entries {
		if filepath.Clean(entry) == normalized {
			return true
		}
	}
	return false
}

// Relative renders an entry point relative to root for log output, falling
// back to the absolute path
func Relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
