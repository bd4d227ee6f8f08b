package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/officefn/cli/output"
	"github.com/fluxbase-eu/officefn/cli/util"
	"github.com/fluxbase-eu/officefn/internal/build"
	"github.com/fluxbase-eu/officefn/internal/config"
	"github.com/fluxbase-eu/officefn/internal/pipeline"
	"github.com/fluxbase-eu/officefn/internal/plugin"
	"github.com/fluxbase-eu/officefn/internal/storage"
)

var (
	buildOutDir  string
	buildSink    string
	buildNoMin   bool
	buildStrict  bool
	buildTimeout time.Duration
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate and emit the script and the manifest once",
	Long: `Run one regeneration cycle and emit both artifacts through the
configured sink (a local directory or an S3-compatible bucket).

Artifacts that carry generation errors are still emitted as error
placeholders; use --strict to exit non-zero in that case.

Examples:
  officefn build
  officefn build --out-dir public
  officefn build --sink s3 --output json`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildOutDir, "out-dir", "", "output directory for the local sink (overrides build.out_dir)")
	buildCmd.Flags().StringVar(&buildSink, "sink", "", "sink to emit to: local or s3 (overrides build.sink)")
	buildCmd.Flags().BoolVar(&buildNoMin, "no-minify", false, "do not minify the script")
	buildCmd.Flags().BoolVar(&buildStrict, "strict", false, "exit non-zero when any artifact has diagnostics")
	buildCmd.Flags().DurationVar(&buildTimeout, "timeout", 0, "bound a single bundler run (default 30s)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBuildFlags(&cfg.Build, &cfg.Plugin)
	if err := cfg.Build.Validate(); err != nil {
		return fmt.Errorf("build configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := runBuildDelivery(ctx, cfg)
	if err != nil {
		return err
	}

	printBuildResult(GetFormatter(), result)

	if !result.OK() {
		printDiagnostics("Build finished with diagnostics", result.Diagnostics())
		if buildStrict {
			return fmt.Errorf("build produced %d diagnostic(s)", len(result.Diagnostics()))
		}
	}
	return nil
}

func applyBuildFlags(bc *config.BuildConfig, pc *config.PluginConfig) {
	if buildOutDir != "" {
		bc.OutDir = buildOutDir
	}
	if buildSink != "" {
		bc.Sink = buildSink
	}
	if buildNoMin {
		pc.Minify = false
	}
}

// runBuildDelivery wires plugin, pipeline and sink and emits both artifacts
func runBuildDelivery(ctx context.Context, cfg *config.Config) (build.Result, error) {
	p, err := plugin.New(cfg.Plugin, plugin.WithBuildTimeout(buildTimeout))
	if err != nil {
		return build.Result{}, err
	}
	defer p.Close()

	if err := p.ConfigResolved(cfg.Root); err != nil {
		return build.Result{}, err
	}

	pl, err := p.Pipeline(pipeline.BuildMode(cfg.Plugin.Minify), nil)
	if err != nil {
		return build.Result{}, err
	}
	defer pl.Stop()

	sink, err := storage.NewSink(&cfg.Build, p.Root())
	if err != nil {
		return build.Result{}, err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", sink.Name()).Msg("Failed to close sink")
		}
	}()

	log.Info().
		Str("root", p.Root()).
		Int("entry_points", len(p.Entries())).
		Str("sink", sink.Name()).
		Bool("minify", cfg.Plugin.Minify).
		Msg("Building custom functions")

	delivery := build.NewDelivery(pl, p.Store(), sink, build.Config{
		ScriptName:   cfg.Plugin.OutputJSName,
		ManifestName: cfg.Plugin.OutputJSONName,
	})
	return delivery.Run(ctx)
}

func printBuildResult(f *output.Formatter, result build.Result) {
	if f.Format != output.FormatTable {
		_ = f.Print(result)
		return
	}

	data := output.TableData{
		Headers: []string{"ARTIFACT", "FILE", "SIZE", "LOCATION"},
	}
	for _, e := range result.Emitted {
		data.Rows = append(data.Rows, []string{
			e.Artifact,
			e.Name,
			util.FormatBytes(int64(e.Bytes)),
			e.Location,
		})
	}
	f.PrintTable(data)
	f.PrintSuccess(fmt.Sprintf("Cycle %s finished (%s) in %s.",
		strconv.FormatUint(result.Report.Cycle, 10),
		result.Report.Outcome(),
		util.FormatDuration(result.Report.Duration)))
}
