// Package plugin turns the host-supplied configuration into the wired
// components of one officefn session.
package plugin

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/officefn/internal/artifact"
	"github.com/fluxbase-eu/officefn/internal/bundler"
	"github.com/fluxbase-eu/officefn/internal/config"
	"github.com/fluxbase-eu/officefn/internal/entrypoints"
	"github.com/fluxbase-eu/officefn/internal/metadata"
	"github.com/fluxbase-eu/officefn/internal/observability"
	"github.com/fluxbase-eu/officefn/internal/pipeline"
)

// Plugin holds the validated configuration and, once the root is known,
// the resolved entry points
type Plugin struct {
	cfg config.PluginConfig

	backend      fiber.Storage
	metrics      *observability.Metrics
	minInterval  time.Duration
	buildTimeout time.Duration

	root    string
	entries []string
	store   *artifact.Store
}

// Option configures a Plugin
type Option func(*Plugin)

// WithMetrics records pipeline and artifact metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Plugin) {
		p.metrics = m
	}
}

// WithStorage sets the backend of the artifact store. The default is an
// in-memory store.
func WithStorage(backend fiber.Storage) Option {
	return func(p *Plugin) {
		p.backend = backend
	}
}

// WithMinCycleInterval spaces out triggered cycles
func WithMinCycleInterval(d time.Duration) Option {
	return func(p *Plugin) {
		p.minInterval = d
	}
}

// WithBuildTimeout bounds a single bundler run
func WithBuildTimeout(d time.Duration) Option {
	return func(p *Plugin) {
		p.buildTimeout = d
	}
}

// New validates cfg. Missing input and unknown targets are reported here,
// before any cycle runs.
func New(cfg config.PluginConfig, opts ...Option) (*Plugin, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if _, err := bundler.ParseTargets(cfg.Target); err != nil {
		return nil, err
	}

	p := &Plugin{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the effective plugin configuration
func (p *Plugin) Config() config.PluginConfig {
	return p.cfg
}

// ConfigResolved establishes the project root and resolves the entry
// points against it. It may be called again when the root changes.
func (p *Plugin) ConfigResolved(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve project root %q: %w", root, err)
	}

	entries, err := entrypoints.Resolve(p.cfg.Input, absRoot)
	if err != nil {
		return err
	}

	p.root = absRoot
	p.entries = entries

	log.Debug().
		Str("root", absRoot).
		Strs("entry_points", entries).
		Msg("Entry points resolved")
	return nil
}

// Root returns the resolved project root
func (p *Plugin) Root() string {
	return p.root
}

// Entries returns a copy of the resolved entry points
func (p *Plugin) Entries() []string {
	return append([]string(nil), p.entries...)
}

// Store returns the artifact store shared by every pipeline of this plugin
func (p *Plugin) Store() *artifact.Store {
	if p.store == nil {
		p.store = artifact.NewStore(p.backend)
	}
	return p.store
}

// Extractor creates the manifest extractor
func (p *Plugin) Extractor() *metadata.Extractor {
	return metadata.NewExtractor(p.cfg.OutputJSONName, p.cfg.LogMetadataGeneration)
}

// Builder creates the script bundler rooted at the project root
func (p *Plugin) Builder() (*bundler.Builder, error) {
	if p.root == "" {
		return nil, fmt.Errorf("project root is not resolved")
	}
	b, err := bundler.NewBuilder(p.root, p.cfg.OutputJSName, p.cfg.Target)
	if err != nil {
		return nil, err
	}
	if p.buildTimeout > 0 {
		b.SetTimeout(p.buildTimeout)
	}
	return b, nil
}

// Pipeline wires the extractor, the bundler and the store into a pipeline
// for mode. notifier may be nil.
func (p *Plugin) Pipeline(mode pipeline.Mode, notifier pipeline.Notifier) (*pipeline.Pipeline, error) {
	if len(p.entries) == 0 {
		return nil, fmt.Errorf("entry points are not resolved; call ConfigResolved first")
	}

	b, err := p.Builder()
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithMetrics(p.metrics)}
	if notifier != nil {
		opts = append(opts, pipeline.WithNotifier(notifier))
	}

	return pipeline.New(pipeline.Config{
		Entries:      p.entries,
		ScriptName:   p.cfg.OutputJSName,
		ManifestName: p.cfg.OutputJSONName,
		Mode:         mode,
		MinInterval:  p.minInterval,
	}, p.Extractor(), b, p.Store(), opts...)
}

// Close releases the artifact store
func (p *Plugin) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}
