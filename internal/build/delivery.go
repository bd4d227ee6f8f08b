// Package build runs a static build: one regeneration cycle, then both
// artifacts are emitted through a storage sink.
package build

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/officefn/internal/artifact"
	"github.com/fluxbase-eu/officefn/internal/observability"
	"github.com/fluxbase-eu/officefn/internal/pipeline"
	"github.com/fluxbase-eu/officefn/internal/storage"
)

// Runner runs one regeneration cycle to completion
type Runner interface {
	RunOnce(ctx context.Context) pipeline.Report
}

// Config names the artifacts to emit
type Config struct {
	ScriptName   string
	ManifestName string
}

// Emitted describes one artifact written to the sink
type Emitted struct {
	Artifact   string `json:"artifact"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Bytes      int    `json:"bytes"`
	Generation uint64 `json:"generation"`
}

// Result is the outcome of a build
type Result struct {
	Report  pipeline.Report `json:"report"`
	Emitted []Emitted       `json:"emitted"`
	// Skipped holds one diagnostic per artifact that had no content
	Skipped []string `json:"skipped,omitempty"`
}

// Diagnostics returns the cycle's diagnostics followed by skipped emissions
func (r Result) Diagnostics() []string {
	return append(r.Report.Errors(), r.Skipped...)
}

// OK reports whether both artifacts were generated cleanly and emitted
func (r Result) OK() bool {
	return r.Report.OK() && len(r.Skipped) == 0
}

// Delivery emits the artifacts of a static build
type Delivery struct {
	runner  Runner
	store   *artifact.Store
	sink    storage.Sink
	cfg     Config
	metrics *observability.Metrics
}

// Option configures a delivery
type Option func(*Delivery)

// WithMetrics records emission metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Delivery) {
		d.metrics = m
	}
}

// NewDelivery creates a delivery reading artifacts from store after runner
// completes a cycle
func NewDelivery(runner Runner, store *artifact.Store, sink storage.Sink, cfg Config, opts ...Option) *Delivery {
	d := &Delivery{
		runner: runner,
		store:  store,
		sink:   sink,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run runs one cycle and emits the manifest and the script. An artifact
// without content is skipped with a diagnostic; artifacts carrying
// generation errors are still emitted. Sink failures abort the run.
func (d *Delivery) Run(ctx context.Context) (Result, error) {
	result := Result{Report: d.runner.RunOnce(ctx)}

	snap, err := d.store.Snapshot()
	if err != nil {
		return result, fmt.Errorf("failed to read artifacts: %w", err)
	}

	targets := []struct {
		half artifact.Half
		name string
	}{
		{artifact.Manifest, d.cfg.ManifestName},
		{artifact.Script, d.cfg.ScriptName},
	}

	for _, target := range targets {
		state := snap.Half(target.half)
		if !state.Present() || *state.Content == "" {
			diag := fmt.Sprintf("%s was not generated; skipping emission", target.name)
			log.Warn().Str("artifact", target.name).Msg("Artifact has no content, not emitted")
			result.Skipped = append(result.Skipped, diag)
			continue
		}

		emitted, err := d.emit(ctx, target.half, target.name, state)
		if err != nil {
			return result, err
		}
		result.Emitted = append(result.Emitted, emitted)
	}

	return result, nil
}

func (d *Delivery) emit(ctx context.Context, h artifact.Half, name string, state artifact.HalfState) (Emitted, error) {
	ctx, span := observability.StartEmitSpan(ctx, d.sink.Name(), name)
	start := time.Now()

	content := []byte(*state.Content)
	err := d.sink.Write(ctx, name, content, storage.ContentTypeFor(name))

	d.metrics.RecordEmit(d.sink.Name(), string(h), len(content), time.Since(start), err)
	observability.EndSpan(span, err, nil)

	if err != nil {
		return Emitted{}, fmt.Errorf("failed to emit %s: %w", name, err)
	}

	emitted := Emitted{
		Artifact:   string(h),
		Name:       name,
		Location:   d.sink.Location(name),
		Bytes:      len(content),
		Generation: state.Generation,
	}

	event := log.Info()
	if state.Failed() {
		event = log.Warn().Int("errors", len(state.Errors))
	}
	event.
		Str("artifact", name).
		Str("location", emitted.Location).
		Int("bytes", emitted.Bytes).
		Msg("Artifact emitted")

	return emitted, nil
}
