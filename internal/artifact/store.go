// Package artifact holds the two generated artifacts (manifest and script)
// shared between the regeneration pipeline and the delivery subsystems.
package artifact

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
)

// Half identifies one of the two artifacts
type Half string

const (
	// Manifest is the JSON callable description
	Manifest Half = "manifest"
	// Script is the browser bundle
	Script Half = "script"
)

// Halves lists both halves in emission order
var Halves = []Half{Manifest, Script}

// HalfState is a read-only copy of one half
type HalfState struct {
	Content    *string   `json:"-"`
	Errors     []string  `json:"errors"`
	Generation uint64    `json:"generation"`
	Cycle      uint64    `json:"cycle"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Present reports whether the half has been generated at least once
func (h HalfState) Present() bool {
	return h.Content != nil
}

// Failed reports whether the last write carried diagnostics
func (h HalfState) Failed() bool {
	return len(h.Errors) > 0
}

// Snapshot is a point-in-time copy of both halves
type Snapshot struct {
	Manifest HalfState `json:"manifest"`
	Script   HalfState `json:"script"`
}

// Paired reports whether both halves were written by the same cycle. Halves
// are written independently, so a reader can observe one half from a newer
// cycle than the other while that cycle is still running.
func (s Snapshot) Paired() bool {
	return s.Manifest.Present() && s.Script.Present() && s.Manifest.Cycle == s.Script.Cycle
}

// Half returns the state of h
func (s Snapshot) Half(h Half) HalfState {
	if h == Script {
		return s.Script
	}
	return s.Manifest
}

type halfMeta struct {
	present    bool
	errors     []string
	generation uint64
	cycle      uint64
	updatedAt  time.Time
}

// Store owns the artifact bytes (kept in a fiber.Storage backend) and the
// per-half versioning. Each Write replaces exactly one half; the other half
// is never touched, so a failed half never clears a good one.
type Store struct {
	mu      sync.RWMutex
	backend fiber.Storage
	meta    map[Half]*halfMeta
}

// NewStore creates a store. A nil backend selects in-process memory storage.
func NewStore(backend fiber.Storage) *Store {
	if backend == nil {
		backend = memory.New(memory.Config{
			GCInterval: 10 * time.Minute,
		})
	}
	return &Store{
		backend: backend,
		meta: map[Half]*halfMeta{
			Manifest: {},
			Script:   {},
		},
	}
}

func storageKey(h Half) string {
	return "officefn:artifact:" + string(h)
}

// Write replaces one half with content produced by cycle. errs is empty on
// success; on failure content is the error placeholder for that half.
func (s *Store) Write(h Half, cycle uint64, content string, errs []string) (HalfState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.meta[h]
	if !ok {
		return HalfState{}, fmt.Errorf("unknown artifact half: %s", h)
	}

	// Storage backends ignore empty values, so an empty artifact is a delete
	var err error
	if content == "" {
		err = s.backend.Delete(storageKey(h))
	} else {
		err = s.backend.Set(storageKey(h), []byte(content), 0)
	}
	if err != nil {
		return HalfState{}, fmt.Errorf("failed to store %s artifact: %w", h, err)
	}

	meta.present = true
	meta.errors = append([]string(nil), errs...)
	meta.generation++
	meta.cycle = cycle
	meta.updatedAt = time.Now()

	return s.stateLocked(h)
}

// Read returns a copy of one half
func (s *Store) Read(h Half) (HalfState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked(h)
}

// Snapshot returns a copy of both halves taken under one lock
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, err := s.stateLocked(Manifest)
	if err != nil {
		return Snapshot{}, err
	}
	script, err := s.stateLocked(Script)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Manifest: manifest, Script: script}, nil
}

func (s *Store) stateLocked(h Half) (HalfState, error) {
	meta, ok := s.meta[h]
	if !ok {
		return HalfState{}, fmt.Errorf("unknown artifact half: %s", h)
	}

	state := HalfState{
		Errors:     append([]string(nil), meta.errors...),
		Generation: meta.generation,
		Cycle:      meta.cycle,
		UpdatedAt:  meta.updatedAt,
	}
	if !meta.present {
		return state, nil
	}

	data, err := s.backend.Get(storageKey(h))
	if err != nil {
		return HalfState{}, fmt.Errorf("failed to load %s artifact: %w", h, err)
	}
	content := string(data)
	state.Content = &content
	return state, nil
}

// Close releases the storage backend
func (s *Store) Close() error {
	return s.backend.Close()
}
