// Package bundler combines the entry points into the browser script the
// Office host loads, and analyzes the resulting bundle.
package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single esbuild invocation
const DefaultTimeout = 30 * time.Second

// stdinSourceName is the virtual module used when several entry points are combined
const stdinSourceName = "<officefn-entry>"

// Options are the per-cycle bundling switches
type Options struct {
	Minify    bool
	Sourcemap bool
}

// Result contains the outcome of one bundling run. On failure ScriptText
// holds a self-reporting error script and Errors the diagnostics.
type Result struct {
	ScriptText *string
	Errors     []string
	Messages   []api.Message // raw esbuild errors, for terminal formatting
	Warnings   []string
	Metafile   string
}

// OK reports whether bundling produced a script without diagnostics
func (r Result) OK() bool {
	return r.ScriptText != nil && len(r.Errors) == 0
}

// Builder bundles entry points with esbuild
type Builder struct {
	root       string
	outputName string
	target     TargetSpec
	timeout    time.Duration
}

// NewBuilder creates a builder. An unknown target identifier is a
// configuration error.
func NewBuilder(root, outputName string, targets []string) (*Builder, error) {
	spec, err := ParseTargets(targets)
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	return &Builder{
		root:       absRoot,
		outputName: outputName,
		target:     spec,
		timeout:    DefaultTimeout,
	}, nil
}

// SetTimeout overrides the default build timeout
func (b *Builder) SetTimeout(timeout time.Duration) {
	b.timeout = timeout
}

// OutputName returns the script artifact name
func (b *Builder) OutputName() string {
	return b.outputName
}

// Build bundles entries into one IIFE script. It never returns an error:
// failures, timeouts and panics are reported through the result.
func (b *Builder) Build(ctx context.Context, entries []string, opts Options) Result {
	if len(entries) == 0 {
		return b.failure([]string{"no entry points to bundle"}, nil)
	}

	buildCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Bundler panicked")
				done <- b.failure([]string{fmt.Sprintf("unexpected failure during bundling: %v", r)}, nil)
			}
		}()
		done <- b.run(entries, opts)
	}()

	select {
	case result := <-done:
		return result
	case <-buildCtx.Done():
		if buildCtx.Err() == context.DeadlineExceeded {
			return b.failure([]string{fmt.Sprintf("bundling timed out after %v", b.timeout)}, nil)
		}
		return b.failure([]string{fmt.Sprintf("bundling canceled: %v", buildCtx.Err())}, nil)
	}
}

func (b *Builder) run(entries []string, opts Options) Result {
	buildOpts := api.BuildOptions{
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		Target:            b.target.Language,
		Engines:           b.target.Engines,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
		Outfile:           filepath.Join(b.root, b.outputName),
		AbsWorkingDir:     b.root,
		LogLevel:          api.LogLevelSilent,
	}

	if opts.Sourcemap {
		buildOpts.Sourcemap = api.SourceMapInline
		buildOpts.SourcesContent = api.SourcesContentInclude
	} else {
		buildOpts.Sourcemap = api.SourceMapNone
		buildOpts.SourcesContent = api.SourcesContentExclude
	}

	if len(entries) == 1 {
		buildOpts.EntryPoints = []string{entries[0]}
	} else {
		buildOpts.Stdin = &api.StdinOptions{
			Contents:   entryShim(entries),
			ResolveDir: b.root,
			Sourcefile: stdinSourceName,
			Loader:     api.LoaderJS,
		}
	}

	result := api.Build(buildOpts)

	warnings := make([]string, 0, len(result.Warnings))
	for _, msg := range result.Warnings {
		warnings = append(warnings, formatMessage(msg))
	}

	if len(result.Errors) > 0 {
		diagnostics := make([]string, 0, len(result.Errors))
		for _, msg := range result.Errors {
			diagnostics = append(diagnostics, formatMessage(msg))
		}
		failed := b.failure(diagnostics, result.Errors)
		failed.Warnings = warnings
		return failed
	}

	script := ""
	for _, file := range result.OutputFiles {
		if strings.HasSuffix(file.Path, ".js") {
			script = string(file.Contents)
			break
		}
	}
	if script == "" && len(result.OutputFiles) > 0 {
		script = string(result.OutputFiles[0].Contents)
	}

	return Result{
		ScriptText: &script,
		Warnings:   warnings,
		Metafile:   result.Metafile,
	}
}

func (b *Builder) failure(diagnostics []string, messages []api.Message) Result {
	script := ErrorScript(b.outputName, strings.Join(diagnostics, "\n"))
	return Result{
		ScriptText: &script,
		Errors:     diagnostics,
		Messages:   messages,
	}
}

// entryShim imports every entry point in order so they share one bundle
func entryShim(entries []string) string {
	var sb strings.Builder
	for _, entry := range entries {
		spec, _ := json.Marshal(filepath.ToSlash(entry))
		sb.WriteString("import ")
		sb.Write(spec)
		sb.WriteString(";\n")
	}
	return sb.String()
}

// formatMessage renders an esbuild message as "file:line:col: text"
func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column+1, msg.Text)
}

// FormatMessages renders esbuild diagnostics the way esbuild prints them
// on a terminal
func FormatMessages(messages []api.Message, color bool) []string {
	if len(messages) == 0 {
		return nil
	}
	return api.FormatMessages(messages, api.FormatMessagesOptions{
		Kind:  api.ErrorMessage,
		Color: color,
	})
}
