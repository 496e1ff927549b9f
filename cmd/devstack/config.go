package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Stack  StackConfig  `mapstructure:"stack"`
	Docker DockerConfig `mapstructure:"docker"`
	Probe  ProbeConfig  `mapstructure:"probe"`
	State  StateConfig  `mapstructure:"state"`
	Serve  ServeConfig  `mapstructure:"serve"`
	Log    LogConfig    `mapstructure:"log"`
}

// StackConfig holds stack file and lifecycle configuration.
type StackConfig struct {
	File      string        `mapstructure:"file"`       // Path to the stack definition
	StopGrace time.Duration `mapstructure:"stop_grace"` // SIGTERM grace on down
	Pull      bool          `mapstructure:"pull"`       // Pull images missing locally
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// ProbeConfig holds readiness probe configuration.
type ProbeConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StateConfig holds run history configuration.
type StateConfig struct {
	DSN     string `mapstructure:"dsn"`     // SQLite path; empty disables history
	Keep    int    `mapstructure:"keep"`    // Runs kept per stack after pruning
	Enabled bool   `mapstructure:"enabled"` // Record runs
}

// ServeConfig holds the status API server configuration.
type ServeConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("stack.file", "stack.yml")
	v.SetDefault("stack.stop_grace", "10s")
	v.SetDefault("stack.pull", true)
	v.SetDefault("docker.host", "")
	v.SetDefault("probe.interval", "1s")
	v.SetDefault("probe.timeout", "30s")
	v.SetDefault("state.dsn", defaultStateDSN())
	v.SetDefault("state.keep", 50)
	v.SetDefault("state.enabled", true)
	v.SetDefault("serve.addr", "127.0.0.1:7466")
	v.SetDefault("serve.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("DEVSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// defaultStateDSN places the run history database under the user cache
// directory, falling back to the working directory.
func defaultStateDSN() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./devstack.db"
	}
	return dir + "/devstack/history.db"
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
