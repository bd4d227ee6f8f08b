// Package pipeline runs regeneration cycles: extract the manifest and bundle
// the script from the entry points, then publish each half to the artifact
// store as soon as it is ready.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fluxbase-eu/officefn/internal/artifact"
	"github.com/fluxbase-eu/officefn/internal/bundler"
	"github.com/fluxbase-eu/officefn/internal/metadata"
	"github.com/fluxbase-eu/officefn/internal/observability"
)

// Extractor produces the manifest half
type Extractor interface {
	Extract(ctx context.Context, entries []string) metadata.Result
}

// Bundler produces the script half
type Bundler interface {
	Build(ctx context.Context, entries []string, opts bundler.Options) bundler.Result
}

// Config describes one pipeline
type Config struct {
	Entries      []string
	ScriptName   string
	ManifestName string
	Mode         Mode
	// MinInterval spaces out triggered cycles; zero disables the limit
	MinInterval time.Duration
}

// Pipeline serializes regeneration cycles. Triggers arriving while a cycle
// runs collapse into a single follow-up cycle.
type Pipeline struct {
	cfg       Config
	extractor Extractor
	bundler   Bundler
	store     *artifact.Store
	notifier  Notifier
	metrics   *observability.Metrics
	limiter   *rate.Limiter

	// cycleMu is held for the duration of a cycle
	cycleMu sync.Mutex

	mu         sync.Mutex
	running    bool
	pending    bool
	stopped    bool
	idle       chan struct{}
	lastCycle  uint64
	lastReport *Report

	baseCtx context.Context
	cancel  context.CancelFunc

	// afterCycle runs between a triggered cycle and the continue-or-exit
	// decision; tests use it to land a trigger in that window
	afterCycle func()
}

// Option configures a pipeline
type Option func(*Pipeline)

// WithNotifier sets the live-update notifier; it is only used when the mode
// has Notify set
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithMetrics records cycle metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a pipeline writing into store
func New(cfg Config, extractor Extractor, b Bundler, store *artifact.Store, opts ...Option) (*Pipeline, error) {
	if len(cfg.Entries) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one entry point")
	}
	if extractor == nil || b == nil || store == nil {
		return nil, fmt.Errorf("pipeline requires an extractor, a bundler and a store")
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		bundler:   b,
		store:     store,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.MinInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	return p, nil
}

// Mode returns the pipeline's mode
func (p *Pipeline) Mode() Mode {
	return p.cfg.Mode
}

// Entries returns a copy of the entry points
func (p *Pipeline) Entries() []string {
	return append([]string(nil), p.cfg.Entries...)
}

// Store returns the artifact store the pipeline writes to
func (p *Pipeline) Store() *artifact.Store {
	return p.store
}

// RunOnce runs one full cycle synchronously, waiting for any cycle already
// in flight to finish first
func (p *Pipeline) RunOnce(ctx context.Context) Report {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()
	return p.runCycle(ctx)
}

// Trigger requests a cycle without waiting for it. At most one cycle runs
// and at most one more is queued; further triggers are coalesced into the
// queued one. Triggers after Stop are ignored.
func (p *Pipeline) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	if p.running {
		if p.pending {
			p.metrics.RecordTrigger("coalesced")
		} else {
			p.metrics.RecordTrigger("queued")
		}
		p.pending = true
		return
	}

	p.metrics.RecordTrigger("started")
	p.running = true
	p.idle = make(chan struct{})
	go p.loop()
}

func (p *Pipeline) loop() {
	for {
		if p.limiter != nil {
			if err := p.limiter.Wait(p.baseCtx); err != nil {
				log.Debug().Err(err).Msg("Regeneration loop stopped while waiting")
				p.finishLoop(true)
				return
			}
		}

		// In-flight cycles are never canceled
		p.RunOnce(context.WithoutCancel(p.baseCtx))
		if p.afterCycle != nil {
			p.afterCycle()
		}

		if p.finishLoop(false) {
			return
		}
	}
}

// finishLoop consumes a pending trigger and reports false, or marks the
// pipeline idle and reports true. Both happen under one lock.
func (p *Pipeline) finishLoop(force bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !force && p.pending && !p.stopped {
		p.pending = false
		return false
	}

	p.running = false
	p.pending = false
	if p.idle != nil {
		close(p.idle)
		p.idle = nil
	}
	return true
}

// WaitIdle blocks until no triggered cycle is running or queued
func (p *Pipeline) WaitIdle(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop prevents new cycles from starting. A cycle in flight completes.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.pending = false
	p.mu.Unlock()
	p.cancel()
}

// Status returns the scheduling state
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{Running: p.running, Pending: p.pending, LastCycle: p.lastCycle}
}

// LastReport returns the report of the most recent completed cycle
func (p *Pipeline) LastReport() (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastReport == nil {
		return Report{}, false
	}
	return *p.lastReport, true
}

func (p *Pipeline) runCycle(ctx context.Context) Report {
	p.mu.Lock()
	p.lastCycle++
	cycle := p.lastCycle
	p.mu.Unlock()

	report := Report{
		Cycle:     cycle,
		Mode:      p.cfg.Mode.Name,
		StartedAt: time.Now(),
	}

	ctx, span := observability.StartCycleSpan(ctx, cycle, p.cfg.Mode.Name)

	log.Debug().
		Uint64("cycle", cycle).
		Str("mode", p.cfg.Mode.Name).
		Int("entry_points", len(p.cfg.Entries)).
		Msg("Regeneration cycle started")

	// Each half is published as soon as its step completes
	var g errgroup.Group
	g.Go(func() error {
		report.Manifest = p.extractStep(ctx, cycle)
		return nil
	})
	g.Go(func() error {
		report.Script = p.bundleStep(ctx, cycle)
		return nil
	})
	_ = g.Wait()

	report.Duration = time.Since(report.StartedAt)
	p.metrics.RecordCycle(p.cfg.Mode.Name, report.Outcome(), report.Duration)
	observability.EndSpan(span, nil, report.Errors())

	event := log.Info()
	if !report.OK() {
		event = log.Warn().Strs("errors", report.Errors())
	}
	event.
		Uint64("cycle", cycle).
		Str("mode", p.cfg.Mode.Name).
		Str("outcome", report.Outcome()).
		Dur("duration", report.Duration).
		Msg("Regeneration cycle finished")

	p.mu.Lock()
	p.lastReport = &report
	p.mu.Unlock()

	return report
}

func (p *Pipeline) extractStep(ctx context.Context, cycle uint64) StepReport {
	ctx, span := observability.StartStepSpan(ctx, StepExtract, len(p.cfg.Entries))
	start := time.Now()

	result := p.extractor.Extract(ctx, p.cfg.Entries)
	content := ""
	if result.ManifestText != nil {
		content = *result.ManifestText
	} else {
		content = metadata.ErrorPayload(p.cfg.ManifestName, result.Errors)
	}

	step := p.publish(artifact.Manifest, cycle, content, result.Errors)
	step.Step = StepExtract
	step.Duration = time.Since(start)

	if step.OK && p.cfg.Mode.Notify && p.notifier != nil {
		p.notifier.ManifestUpdated(p.cfg.ManifestName)
		step.Notified = true
	}

	p.metrics.RecordStep(StepExtract, step.Duration, !step.OK)
	observability.EndSpan(span, nil, step.Errors)
	return step
}

func (p *Pipeline) bundleStep(ctx context.Context, cycle uint64) StepReport {
	ctx, span := observability.StartStepSpan(ctx, StepBundle, len(p.cfg.Entries))
	start := time.Now()

	result := p.bundler.Build(ctx, p.cfg.Entries, bundler.Options{
		Minify:    p.cfg.Mode.Minify,
		Sourcemap: p.cfg.Mode.Sourcemap,
	})
	content := ""
	if result.ScriptText != nil {
		content = *result.ScriptText
	} else {
		content = bundler.ErrorScript(p.cfg.ScriptName, "bundler produced no output")
	}

	step := p.publish(artifact.Script, cycle, content, result.Errors)
	step.Step = StepBundle
	step.Warnings = result.Warnings
	step.Duration = time.Since(start)

	if step.OK && p.cfg.Mode.Notify && p.notifier != nil {
		p.notifier.ScriptUpdated(p.cfg.ScriptName)
		step.Notified = true
	}

	p.metrics.RecordStep(StepBundle, step.Duration, !step.OK)
	observability.EndSpan(span, nil, step.Errors)
	return step
}

// publish writes one half and describes the outcome
func (p *Pipeline) publish(h artifact.Half, cycle uint64, content string, errs []string) StepReport {
	step := StepReport{
		Errors: errs,
		Bytes:  len(content),
	}

	state, err := p.store.Write(h, cycle, content, errs)
	if err != nil {
		log.Error().Err(err).Str("artifact", string(h)).Uint64("cycle", cycle).Msg("Failed to publish artifact")
		step.StoreError = err.Error()
		step.Errors = append(append([]string(nil), errs...), err.Error())
		return step
	}

	step.OK = len(errs) == 0
	step.Generation = state.Generation
	p.metrics.UpdateArtifact(string(h), len(content), state.Generation)

	if !step.OK {
		log.Warn().
			Str("artifact", string(h)).
			Uint64("cycle", cycle).
			Strs("errors", errs).
			Msg("Artifact generated with errors")
	}

	return step
}
