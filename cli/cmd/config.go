package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/officefn/cli/output"
	"github.com/fluxbase-eu/officefn/cli/util"
	"github.com/fluxbase-eu/officefn/internal/config"
)

const defaultConfigFile = "officefn.yaml"

const configTemplate = `# officefn configuration
root: "."
debug: false

plugin:
  # One path or a list of paths, relative to root
  input:
    - src/functions/functions.ts
  output_js_name: functions.js
  output_json_name: functions.json
  target:
    - es2020
  log_metadata_generation: false
  minify: true

build:
  out_dir: dist
  sink: local # local or s3

server:
  address: ":3000"
  public_dir: ""
  cors_origins: "*"

dev:
  min_cycle_interval: 0s

live:
  backend: local # local or redis
  ping_interval: 30s

metrics:
  enabled: true
  path: /metrics

tracing:
  enabled: false
  endpoint: localhost:4317
`

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage officefn configuration",
	Long:  `View the effective configuration or create a configuration file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a new configuration file",
	Long: `Create an officefn.yaml with the default settings.

Examples:
  officefn config init
  officefn config init config/officefn.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long: `Show the configuration after merging the config file, environment
variables and defaults. Secrets are masked.

Examples:
  officefn config view
  officefn config view --output yaml`,
	RunE: runConfigView,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configViewCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := defaultConfigFile
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		if !util.IsInteractive() {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		ok, err := util.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("%s already exists. Overwrite?", path), false)
		if err != nil {
			return err
		}
		if !ok {
			GetFormatter().PrintInfo("Aborted.")
			return nil
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	GetFormatter().PrintSuccess(fmt.Sprintf("Configuration written to %s.", path))
	return nil
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	masked := maskConfig(*cfg)
	f := GetFormatter()
	if f.Format != output.FormatTable {
		return f.Print(masked)
	}

	for _, kv := range configRows(masked) {
		f.PrintKeyValue(kv[0], kv[1])
	}
	return nil
}

// maskConfig returns a copy of cfg with credentials hidden
func maskConfig(cfg config.Config) config.Config {
	cfg.Build.S3.AccessKey = util.MaskToken(cfg.Build.S3.AccessKey)
	cfg.Build.S3.SecretKey = util.MaskToken(cfg.Build.S3.SecretKey)
	cfg.Live.RedisURL = util.MaskURL(cfg.Live.RedisURL)
	return cfg
}

func configRows(cfg config.Config) [][2]string {
	rows := [][2]string{
		{"root", cfg.Root},
		{"plugin.input", strings.Join(cfg.Plugin.Input, ", ")},
		{"plugin.output_js_name", cfg.Plugin.OutputJSName},
		{"plugin.output_json_name", cfg.Plugin.OutputJSONName},
		{"plugin.target", strings.Join(cfg.Plugin.Target, ", ")},
		{"plugin.minify", fmt.Sprint(cfg.Plugin.Minify)},
		{"build.sink", cfg.Build.Sink},
	}
	if cfg.Build.Sink == "s3" {
		rows = append(rows,
			[2]string{"build.s3.endpoint", cfg.Build.S3.Endpoint},
			[2]string{"build.s3.bucket", cfg.Build.S3.Bucket},
			[2]string{"build.s3.access_key", cfg.Build.S3.AccessKey},
			[2]string{"build.s3.secret_key", cfg.Build.S3.SecretKey},
		)
	} else {
		rows = append(rows, [2]string{"build.out_dir", cfg.Build.OutDir})
	}
	rows = append(rows,
		[2]string{"server.address", cfg.Server.Address},
		[2]string{"server.public_dir", cfg.Server.PublicDir},
		[2]string{"live.backend", cfg.Live.Backend},
	)
	if cfg.Live.RedisURL != "" {
		rows = append(rows, [2]string{"live.redis_url", cfg.Live.RedisURL})
	}
	return append(rows,
		[2]string{"metrics.enabled", fmt.Sprint(cfg.Metrics.Enabled)},
		[2]string{"tracing.enabled", fmt.Sprint(cfg.Tracing.Enabled)},
	)
}
