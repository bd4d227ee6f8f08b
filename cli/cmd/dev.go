package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/officefn/internal/config"
	"github.com/fluxbase-eu/officefn/internal/devserver"
	"github.com/fluxbase-eu/officefn/internal/observability"
	"github.com/fluxbase-eu/officefn/internal/pipeline"
	"github.com/fluxbase-eu/officefn/internal/plugin"
	"github.com/fluxbase-eu/officefn/internal/pubsub"
	"github.com/fluxbase-eu/officefn/internal/realtime"
	"github.com/fluxbase-eu/officefn/internal/watcher"
)

const (
	shutdownTimeout = 10 * time.Second
	uptimeInterval  = 15 * time.Second
)

var (
	devAddress   string
	devPublicDir string
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Serve the artifacts from memory and regenerate them on change",
	Long: `Start the dev server. Both artifacts are generated once at startup and
again whenever an entry point changes. Connected clients are told to reload
through the live-update websocket.

Routes:
  /<output_js_name>       the script bundle
  /<output_json_name>     the manifest
  /__officefn/status      artifact and pipeline status
  /__officefn/ws          live-update websocket
  /metrics                Prometheus metrics (when enabled)

Examples:
  officefn dev
  officefn dev --address :8080 --public-dir public`,
	RunE: runDev,
}

func init() {
	devCmd.Flags().StringVar(&devAddress, "address", "", "listen address (overrides server.address)")
	devCmd.Flags().StringVar(&devPublicDir, "public-dir", "", "directory served for every other path (overrides server.public_dir)")
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if devAddress != "" {
		cfg.Server.Address = devAddress
	}
	if devPublicDir != "" {
		cfg.Server.PublicDir = devPublicDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveDev(ctx, cfg)
}

// serveDev runs a dev session until ctx is done or the server fails
func serveDev(ctx context.Context, cfg *config.Config) error {
	startTime := time.Now()

	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		SampleRate:     cfg.Tracing.SampleRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownWith(tracer.Shutdown, "tracer")

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	p, err := plugin.New(cfg.Plugin,
		plugin.WithMetrics(metrics),
		plugin.WithMinCycleInterval(cfg.Dev.MinCycleInterval),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.ConfigResolved(cfg.Root); err != nil {
		return err
	}

	ps, err := pubsub.NewPubSub(&cfg.Live)
	if err != nil {
		return err
	}
	defer func() {
		if err := ps.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close live-update pub/sub")
		}
	}()

	live, err := realtime.NewManager(ctx, ps, metrics)
	if err != nil {
		return err
	}
	defer live.Shutdown()
	live.StartPing(cfg.Live.PingInterval)

	pl, err := p.Pipeline(pipeline.DevMode(), live)
	if err != nil {
		return err
	}
	defer pl.Stop()

	report := pl.RunOnce(ctx)
	if !report.OK() {
		printDiagnostics("Initial generation finished with diagnostics", report.Errors())
	}

	w, err := watcher.New(p.Entries(), pl)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	w.Start(ctx)

	server := devserver.New(devserver.Options{
		Server:       cfg.Server,
		ScriptName:   cfg.Plugin.OutputJSName,
		ManifestName: cfg.Plugin.OutputJSONName,
		Store:        p.Store(),
		Pipeline:     pl,
		Live:         live,
		Metrics:      metrics,
		MetricsPath:  cfg.Metrics.Path,
		Tracing:      tracer.IsEnabled(),
		Debug:        cfg.Debug,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	go func() {
		ticker := time.NewTicker(uptimeInterval)
		defer ticker.Stop()
		for {
			metrics.UpdateUptime(startTime)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("dev server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down dev server...")

	// Refuse new cycles first; a cycle in flight still completes
	pl.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("Dev server forced to shutdown")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer waitCancel()
	if err := pl.WaitIdle(waitCtx); err != nil {
		log.Warn().Err(err).Msg("Regeneration cycle still running at exit")
	}

	log.Info().Msg("Dev server exited")
	return nil
}

func shutdownWith(fn func(context.Context) error, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("component", name).Msg("Shutdown failed")
	}
}
