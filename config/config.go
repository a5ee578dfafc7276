// Package config loads the YAML configuration shared by the server and the
// CLI. Command-line flags override file values; environment variables
// override both for the database path, the port and the log level.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration file.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Legislation LegislationConfig `yaml:"legislation"`
	Batch       BatchConfig       `yaml:"batch"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RequestLogging  bool     `yaml:"request_logging"`
	ReadTimeout     string   `yaml:"read_timeout"`
	WriteTimeout    string   `yaml:"write_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the sqlite store. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LegislationConfig replaces the embedded legislation with a file, JSON or
// YAML by extension.
type LegislationConfig struct {
	Path string `yaml:"path"`
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	Parallelism int  `yaml:"parallelism"`
	Trace       bool `yaml:"trace"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			RequestLogging:  true,
			ReadTimeout:     "15s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			Path: "fisc.db",
		},
		Batch: BatchConfig{
			Parallelism: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if path, ok := os.LookupEnv("FISC_DB"); ok {
		c.Database.Path = path
	}
	if port := os.Getenv("FISC_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("FISC_PORT: %w", err)
		}
		c.Server.Port = n
	}
	if level := os.Getenv("FISC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for name, s := range map[string]string{
		"read_timeout":     c.Server.ReadTimeout,
		"write_timeout":    c.Server.WriteTimeout,
		"shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid server %s %q: %w", name, s, err)
		}
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Batch.Parallelism < 0 {
		return fmt.Errorf("invalid batch parallelism: %d", c.Batch.Parallelism)
	}
	return nil
}

// GetReadTimeout returns the read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration { return duration(c.Server.ReadTimeout, 15*time.Second) }

// GetWriteTimeout returns the write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration { return duration(c.Server.WriteTimeout, 60*time.Second) }

// GetShutdownTimeout returns the grace period for in-flight requests.
func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 30*time.Second)
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// NewLogger builds a zap logger at the configured level. Debug switches to
// the development encoder.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
