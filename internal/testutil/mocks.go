// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/fluxbase-eu/officefn/internal/bundler"
	"github.com/fluxbase-eu/officefn/internal/metadata"
)

// ErrMockObjectNotFound is returned when an object is not found in a mock sink
var ErrMockObjectNotFound = errors.New("object not found")

// NotifierEvent is one recorded live-update signal
type NotifierEvent struct {
	Kind string // "script" or "manifest"
	File string
}

// RecordingNotifier records live-update signals
type RecordingNotifier struct {
	mu     sync.Mutex
	events []NotifierEvent
}

// NewRecordingNotifier creates an empty recorder
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) ScriptUpdated(file string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, NotifierEvent{Kind: "script", File: file})
}

func (n *RecordingNotifier) ManifestUpdated(file string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, NotifierEvent{Kind: "manifest", File: file})
}

// Events returns a copy of the recorded signals
func (n *RecordingNotifier) Events() []NotifierEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotifierEvent(nil), n.events...)
}

// Count returns how many signals of kind were recorded
func (n *RecordingNotifier) Count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.Kind == kind {
			count++
		}
	}
	return count
}

// Reset clears the recorded signals
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

// gate lets tests hold a stub inside its call
type gate struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

// Hold makes the next calls block until Release. Entered receives one value
// per call that blocked.
func (g *gate) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entered = make(chan struct{}, 64)
	g.release = make(chan struct{})
}

// Release unblocks held calls
func (g *gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.release != nil {
		close(g.release)
		g.release = nil
	}
}

// Entered is signaled every time a held call starts
func (g *gate) Entered() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entered
}

// Calls returns the number of calls so far
func (g *gate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gate) enter() int {
	g.mu.Lock()
	g.calls++
	call := g.calls
	entered, release := g.entered, g.release
	g.mu.Unlock()

	if release != nil {
		entered <- struct{}{}
		<-release
	}
	return call
}

// StubExtractor implements the pipeline's extractor with canned results
type StubExtractor struct {
	gate
	// OnExtract builds the result of the nth call (1-based)
	OnExtract func(call int, entries []string) metadata.Result
}

// Extract returns the canned result
func (s *StubExtractor) Extract(ctx context.Context, entries []string) metadata.Result {
	call := s.enter()
	if s.OnExtract != nil {
		return s.OnExtract(call, entries)
	}
	text := `{"functions":[]}`
	return metadata.Result{ManifestText: &text, Manifest: &metadata.Manifest{Functions: []metadata.Function{}}}
}

// StubBundler implements the pipeline's bundler with canned results
type StubBundler struct {
	gate
	mu          sync.Mutex
	lastOptions bundler.Options
	// OnBuild builds the result of the nth call (1-based)
	OnBuild func(call int, entries []string, opts bundler.Options) bundler.Result
}

// Build returns the canned result
func (s *StubBundler) Build(ctx context.Context, entries []string, opts bundler.Options) bundler.Result {
	s.mu.Lock()
	s.lastOptions = opts
	s.mu.Unlock()

	call := s.enter()
	if s.OnBuild != nil {
		return s.OnBuild(call, entries, opts)
	}
	text := "(() => {})();"
	return bundler.Result{ScriptText: &text}
}

// LastOptions returns the options of the most recent call
func (s *StubBundler) LastOptions() bundler.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOptions
}

// FailedBundle is a bundler result carrying diagnostics
func FailedBundle(outputName string, errs ...string) bundler.Result {
	text := bundler.ErrorScript(outputName, errs[0])
	return bundler.Result{ScriptText: &text, Errors: errs}
}

// FailedExtraction is an extraction result carrying diagnostics
func FailedExtraction(outputName string, errs ...string) metadata.Result {
	text := metadata.ErrorPayload(outputName, errs)
	return metadata.Result{ManifestText: &text, Errors: errs}
}

// MockSink implements storage.Sink in memory
type MockSink struct {
	mu           sync.RWMutex
	objects      map[string][]byte
	contentTypes map[string]string

	// OnWrite can fail a write
	OnWrite func(ctx context.Context, name string, content []byte) error
}

// NewMockSink creates an empty mock sink
func NewMockSink() *MockSink {
	return &MockSink{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *MockSink) Name() string {
	return "mock"
}

func (m *MockSink) Write(ctx context.Context, name string, content []byte, contentType string) error {
	if m.OnWrite != nil {
		if err := m.OnWrite(ctx, name, content); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), content...)
	m.contentTypes[name] = contentType
	return nil
}

func (m *MockSink) Location(name string) string {
	return "mock://" + name
}

func (m *MockSink) Close() error {
	return nil
}

// Get returns a written object
func (m *MockSink) Get(name string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, "", ErrMockObjectNotFound
	}
	return data, m.contentTypes[name], nil
}

// Len returns the number of written objects
func (m *MockSink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
