// Package config loads broker-fabric configuration, modeled on the
// teacher's config.go: struct tags parsed by caarlos0/env, an optional
// .env file loaded first via godotenv, and a Validate pass before the
// network is allowed to start.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/adred-codev/pubsub-fabric/internal/logging"
)

// Config holds all broker-fabric configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Topology
	BrokerCount      int `env:"PSF_BROKER_COUNT" envDefault:"3"`
	DefaultWindow    int `env:"PSF_DEFAULT_WINDOW_SIZE" envDefault:"10"`
	HealthCheckEvery time.Duration `env:"PSF_HEALTH_CHECK_INTERVAL" envDefault:"5s"`

	// Durable store (Redis)
	RedisAddr string `env:"PSF_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"PSF_REDIS_DB" envDefault:"0"`
	StoreTTL  time.Duration `env:"PSF_STORE_TTL" envDefault:"1h"`

	// Schema
	SchemaPath string `env:"PSF_SCHEMA_PATH" envDefault:"schema.json"`

	// Rate limiting (publish ingestion pacing)
	MaxPublishRate int `env:"PSF_MAX_PUBLISH_RATE" envDefault:"500"`
	PublishBurst   int `env:"PSF_PUBLISH_BURST" envDefault:"50"`

	// Metrics
	MetricsAddr string `env:"PSF_METRICS_ADDR" envDefault:":9102"`

	// Logging
	LogLevel  string `env:"PSF_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PSF_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and environment
// variables. Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors. An invalid configuration is
// fatal at load time (spec.md §7 ConfigInvalid) — no brokers start.
func (c *Config) Validate() error {
	if c.BrokerCount < 1 {
		return fmt.Errorf("PSF_BROKER_COUNT must be > 0, got %d", c.BrokerCount)
	}
	if c.DefaultWindow < 0 {
		return fmt.Errorf("PSF_DEFAULT_WINDOW_SIZE must be >= 0, got %d", c.DefaultWindow)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("PSF_REDIS_ADDR is required")
	}
	if c.SchemaPath == "" {
		return fmt.Errorf("PSF_SCHEMA_PATH is required")
	}
	if c.MaxPublishRate < 1 {
		return fmt.Errorf("PSF_MAX_PUBLISH_RATE must be > 0, got %d", c.MaxPublishRate)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("PSF_LOG_LEVEL must be one of debug/info/warn/error, got %q", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("PSF_LOG_FORMAT must be one of json/pretty, got %q", c.LogFormat)
	}

	return nil
}

// LoggingConfig adapts Config's flat log fields into a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.Level(c.LogLevel),
		Format: logging.Format(c.LogFormat),
	}
}

// LogConfig logs the resolved configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Int("broker_count", c.BrokerCount).
		Int("default_window", c.DefaultWindow).
		Dur("health_check_interval", c.HealthCheckEvery).
		Str("redis_addr", c.RedisAddr).
		Int("redis_db", c.RedisDB).
		Dur("store_ttl", c.StoreTTL).
		Str("schema_path", c.SchemaPath).
		Int("max_publish_rate", c.MaxPublishRate).
		Int("publish_burst", c.PublishBurst).
		Str("metrics_addr", c.MetricsAddr).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
