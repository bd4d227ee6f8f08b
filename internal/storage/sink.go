// Package storage emits build artifacts to their final location.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/fluxbase-eu/officefn/internal/config"
)

// Sink receives the artifacts of a static build
type Sink interface {
	// Name returns the sink type, used in logs and metrics
	Name() string

	// Write stores content under name, replacing any previous artifact
	Write(ctx context.Context, name string, content []byte, contentType string) error

	// Location describes where name is stored
	Location(name string) string

	// Close releases the sink's resources
	Close() error
}

// ContentTypeFor returns the content type of an artifact file name
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".js", ".mjs", ".cjs":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".map":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// NewSink creates the sink selected by cfg. A relative out_dir is resolved
// against root.
func NewSink(cfg *config.BuildConfig, root string) (Sink, error) {
	switch cfg.Sink {
	case "local", "":
		dir := cfg.OutDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		return NewLocalSink(dir)
	case "s3":
		return NewS3Sink(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown sink: %s (valid options: local, s3)", cfg.Sink)
	}
}

// validateName rejects names that would escape the sink's root. Names may
// carry forward-slash sub-directories.
func validateName(name string) error {
	return config.ValidateArtifactName(name)
}
