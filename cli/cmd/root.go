// Package cmd provides the Cobra commands for the officefn CLI.
package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/officefn/cli/output"
	"github.com/fluxbase-eu/officefn/cli/util"
	"github.com/fluxbase-eu/officefn/internal/config"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	rootDir   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	v         = viper.New()
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "officefn",
	Short: "officefn - Build Office custom functions",
	Long: `officefn bundles annotated TypeScript or JavaScript sources into the
script and the JSON manifest an Office host loads as custom functions.

Get started:
  officefn config init   Write an officefn.yaml with the defaults
  officefn dev           Serve the artifacts and rebuild on change
  officefn build         Emit the artifacts once

Configuration is read from officefn.yaml (in . or ./config), OFFICEFN_*
environment variables and .env files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
		setupLogging(debug)

		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, noHeaders, quiet)
		return nil
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./officefn.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "",
		"project root entry points are resolved against (default is the config root)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	_ = v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(analyzeCmd)

	registerCompletions()
}

// setupLogging configures the global zerolog logger for terminal output
func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    !util.ColorEnabled(os.Stderr),
		TimeFormat: time.Kitchen,
	})

	switch {
	case debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case quiet:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig reads the effective configuration. --root overrides the
// configured root.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	if cfg.Debug && !debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

// GetFormatter returns the output formatter (for use by subcommands)
func GetFormatter() *output.Formatter {
	if formatter == nil {
		format, _ := output.ParseFormat(outputFmt)
		formatter = output.NewFormatter(format, noHeaders, quiet)
	}
	return formatter
}

// IsDebug returns true if debug mode is enabled
func IsDebug() bool {
	return debug
}

// printDiagnostics writes one diagnostic per line to stderr
func printDiagnostics(title string, diagnostics []string) {
	GetFormatter().PrintDiagnostics(title, diagnostics)
}
