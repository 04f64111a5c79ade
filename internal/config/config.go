package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	MediaDir string `envconfig:"MEDIA_DIR" required:"true"`
	TempDir  string `envconfig:"TEMP_DIR"`
	DBPath   string `envconfig:"DB_PATH" default:"videos.db"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFile  string `envconfig:"LOG_FILE"`

	ResolverURL     string        `envconfig:"RESOLVER_URL"`
	ResolverTimeout time.Duration `envconfig:"RESOLVER_TIMEOUT" default:"30s"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"10m"`
	ProgressInterval  time.Duration `envconfig:"PROGRESS_INTERVAL" default:"500ms"`
	RateLimit         int           `envconfig:"RATE_LIMIT" default:"0"`
	UserAgent         string        `envconfig:"USER_AGENT" default:"downtube"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"10m"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled        bool   `default:"true"`
		ServiceName    string `split_words:"true" default:"downtube"`
		ServiceVersion string `split_words:"true" default:"dev"`
		OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.MediaDir == "" {
		return nil, errors.New("MEDIA_DIR must not be empty")
	}

	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(cfg.MediaDir, ".partial")
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("RATE_LIMIT must not be negative, got %d", cfg.RateLimit)
	}

	return &cfg, nil
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
