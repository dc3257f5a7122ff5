// Package config loads runtime configuration for graphload binaries
// from flags, environment variables, and an optional config file.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// DatabaseConfig holds connection settings for the relational backend.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoaderConfig holds loader scheduling settings.
type LoaderConfig struct {
	// FlushWindow is the coalescing window: how long the scheduler
	// waits after an enqueue before draining the pending batch.
	FlushWindow time.Duration `mapstructure:"flush_window"`
	// MaxBatchSize chunks oversized flushes; zero means unbounded.
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	OTLPEndpoint     string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure     bool    `mapstructure:"otlp_insecure"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
	MetricsAddr      string  `mapstructure:"metrics_addr"`
}

var defineFlagsOnce sync.Once

func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.String("config", "", "path to config file")
		pflag.String("dsn", "", "database DSN (overrides config file)")
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("loader.flush_window", "500us")
	v.SetDefault("loader.max_batch_size", 100)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.trace_sample_ratio", 1.0)
	v.SetDefault("telemetry.metrics_addr", ":9090")
}

// Load loads configuration with the following precedence:
// 1. Command line flags
// 2. Environment variables (GRAPHLOAD_ prefix)
// 3. Config file
// 4. Default values
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("graphload")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/graphload/")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("GRAPHLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dsn, _ := pflag.CommandLine.GetString("dsn"); dsn != "" {
		v.Set("database.dsn", dsn)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	var problems []string
	if c.Loader.FlushWindow <= 0 {
		problems = append(problems, "loader.flush_window must be positive")
	}
	if c.Loader.MaxBatchSize < 0 {
		problems = append(problems, "loader.max_batch_size must not be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of json, text", c.Logging.Format))
	}
	if ratio := c.Telemetry.TraceSampleRatio; ratio < 0 || ratio > 1 {
		problems = append(problems, "telemetry.trace_sample_ratio must be within [0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
