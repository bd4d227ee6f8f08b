package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	// DefaultJSName is the script artifact name used when output_js_name is unset
	DefaultJSName = "functions.js"
	// DefaultJSONName is the manifest artifact name used when output_json_name is unset
	DefaultJSONName = "functions.json"
	// DefaultTarget is the execution environment used when neither the plugin
	// nor the host configuration names one
	DefaultTarget = "es2020"
)

// ErrMissingInput is returned when the plugin is configured without entry points
var ErrMissingInput = errors.New(`missing "input" option`)

// Config represents the application configuration
type Config struct {
	Root    string        `mapstructure:"root"`
	Plugin  PluginConfig  `mapstructure:"plugin"`
	Build   BuildConfig   `mapstructure:"build"`
	Server  ServerConfig  `mapstructure:"server"`
	Dev     DevConfig     `mapstructure:"dev"`
	Live    LiveConfig    `mapstructure:"live"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Debug   bool          `mapstructure:"debug"`
}

// PluginConfig is the configuration surface the host supplies at activation
type PluginConfig struct {
	Input                 []string `mapstructure:"input"`
	OutputJSName          string   `mapstructure:"output_js_name"`
	OutputJSONName        string   `mapstructure:"output_json_name"`
	Target                []string `mapstructure:"target"`
	LogMetadataGeneration bool     `mapstructure:"log_metadata_generation"`
	Minify                bool     `mapstructure:"minify"` // host build minify policy
}

// BuildConfig contains static build emission settings
type BuildConfig struct {
	OutDir string   `mapstructure:"out_dir"`
	Sink   string   `mapstructure:"sink"` // local or s3
	S3     S3Config `mapstructure:"s3"`
}

// S3Config contains S3-compatible bucket settings for the s3 sink
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ServerConfig contains dev server HTTP settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	PublicDir    string        `mapstructure:"public_dir"`
	CorsOrigins  string        `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DevConfig contains regeneration settings for dev mode
type DevConfig struct {
	MinCycleInterval time.Duration `mapstructure:"min_cycle_interval"`
}

// LiveConfig contains live-update (websocket) settings
type LiveConfig struct {
	Backend      string        `mapstructure:"backend"` // local or redis
	RedisURL     string        `mapstructure:"redis_url"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// envOnlyKeys have no default, so they must be bound explicitly for
// Unmarshal to see OFFICEFN_* values
var envOnlyKeys = []string{
	"plugin.input",
	"server.public_dir",
	"live.redis_url",
	"build.s3.endpoint",
	"build.s3.access_key",
	"build.s3.secret_key",
	"build.s3.bucket",
	"build.s3.region",
	"build.s3.prefix",
}

// Load loads configuration from the given viper instance, a config file (if
// one is found) and environment variables
func Load(v *viper.Viper) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("officefn")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	SetDefaults(v)

	v.SetEnvPrefix("OFFICEFN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.Plugin.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile() error {
	for _, location := range []string{".env", ".env.local"} {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("debug", false)

	// Plugin defaults
	v.SetDefault("plugin.output_js_name", DefaultJSName)
	v.SetDefault("plugin.output_json_name", DefaultJSONName)
	v.SetDefault("plugin.target", []string{DefaultTarget})
	v.SetDefault("plugin.log_metadata_generation", false)
	v.SetDefault("plugin.minify", true)

	// Build defaults
	v.SetDefault("build.out_dir", "dist")
	v.SetDefault("build.sink", "local")
	v.SetDefault("build.s3.use_ssl", true)

	// Server defaults
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("dev.min_cycle_interval", "0s")

	// Live-update defaults
	v.SetDefault("live.backend", "local")
	v.SetDefault("live.ping_interval", "30s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "officefn")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)
}

// ApplyDefaults fills the optional plugin fields the way the host would:
// empty names fall back to functions.js / functions.json and an empty target
// falls back to es2020
func (pc *PluginConfig) ApplyDefaults() {
	if pc.OutputJSName == "" {
		pc.OutputJSName = DefaultJSName
	}
	if pc.OutputJSONName == "" {
		pc.OutputJSONName = DefaultJSONName
	}
	if len(pc.Target) == 0 {
		pc.Target = []string{DefaultTarget}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Plugin.Validate(); err != nil {
		return err
	}
	if err := c.Build.Validate(); err != nil {
		return fmt.Errorf("build configuration error: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live configuration error: %w", err)
	}
	if c.Dev.MinCycleInterval < 0 {
		return fmt.Errorf("dev.min_cycle_interval cannot be negative")
	}
	return nil
}

// Validate validates the plugin configuration. An input list that is empty or
// only contains blank paths is a ConfigurationError.
func (pc *PluginConfig) Validate() error {
	if len(pc.Input) == 0 {
		return ErrMissingInput
	}
	for i, in := range pc.Input {
		if strings.TrimSpace(in) == "" {
			return fmt.Errorf("%w: entry %d is empty", ErrMissingInput, i)
		}
	}
	if pc.OutputJSName == pc.OutputJSONName {
		return fmt.Errorf("output_js_name and output_json_name must differ (both are %q)", pc.OutputJSName)
	}
	for _, name := range []string{pc.OutputJSName, pc.OutputJSONName} {
		if err := ValidateArtifactName(name); err != nil {
			return err
		}
	}
	return nil
}

// ValidateArtifactName accepts a file name or a clean forward-slash relative
// path such as "assets/functions.js". Names that are absolute, unclean or
// climb out with ".." are rejected.
func ValidateArtifactName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name is empty")
	}
	if strings.Contains(name, `\`) || strings.HasPrefix(name, "/") || path.Clean(name) != name {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "." || segment == ".." {
			return fmt.Errorf("invalid artifact name %q", name)
		}
	}
	return nil
}

// Validate validates build configuration
func (bc *BuildConfig) Validate() error {
	switch bc.Sink {
	case "local", "":
		if bc.OutDir == "" {
			return fmt.Errorf("out_dir is required for the local sink")
		}
	case "s3":
		if bc.S3.Endpoint == "" || bc.S3.AccessKey == "" ||
			bc.S3.SecretKey == "" || bc.S3.Bucket == "" {
			return fmt.Errorf("S3 configuration is incomplete")
		}
	default:
		return fmt.Errorf("sink must be 'local' or 's3', got %q", bc.Sink)
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	return nil
}

// Validate validates live-update configuration
func (lc *LiveConfig) Validate() error {
	switch lc.Backend {
	case "local", "":
	case "redis":
		if lc.RedisURL == "" {
			return fmt.Errorf("redis_url is required for redis backend")
		}
	default:
		return fmt.Errorf("unknown live-update backend: %s (valid options: local, redis)", lc.Backend)
	}
	if lc.PingInterval < 0 {
		return fmt.Errorf("ping_interval cannot be negative")
	}
	return nil
}
