package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	CartName string `envconfig:"CART_NAME" default:"cartStatus"`
	Origin   string `envconfig:"ORIGIN"`

	DurableBackend string        `envconfig:"DURABLE_BACKEND" default:"sqlite"`
	DBPath         string        `envconfig:"DB_PATH" default:"datacart.db"`
	RedisURL       string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisPrefix    string        `envconfig:"REDIS_PREFIX" default:"datacart"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	PruneInterval  time.Duration `envconfig:"PRUNE_INTERVAL" default:"1h"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"datacart_status"`
		OTLPEndpoint string `split_words:"true"`
	}

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	switch c.DurableBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("invalid durable backend: %s", c.DurableBackend)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}

	if c.PruneInterval <= 0 {
		return fmt.Errorf("prune interval must be positive, got %s", c.PruneInterval)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
