package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// LocalSink writes artifacts into a directory
type LocalSink struct {
	dir string
}

// NewLocalSink creates dir if needed
func NewLocalSink(dir string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalSink{dir: dir}, nil
}

// Name returns the sink type
func (ls *LocalSink) Name() string {
	return "local"
}

// Dir returns the output directory
func (ls *LocalSink) Dir() string {
	return ls.dir
}

// Location returns the file path of name
func (ls *LocalSink) Location(name string) string {
	return filepath.Join(ls.dir, filepath.FromSlash(name))
}

// Write replaces the file atomically: readers see the old or the new
// content, never a partial file.
func (ls *LocalSink) Write(ctx context.Context, name string, content []byte, contentType string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target := ls.Location(name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	sum := md5.Sum(content)
	log.Debug().
		Str("path", target).
		Str("content_type", contentType).
		Int("size", len(content)).
		Str("etag", hex.EncodeToString(sum[:])).
		Msg("Artifact written")

	return nil
}

// Close is a no-op
func (ls *LocalSink) Close() error {
	return nil
}
