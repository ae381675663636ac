package config

import (
	"time"

	"github.com/vietddude/boardcheck/internal/infra/notify"
	"github.com/vietddude/boardcheck/internal/infra/provider"
	redisclient "github.com/vietddude/boardcheck/internal/infra/redis"
	"github.com/vietddude/boardcheck/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Checker  CheckerConfig      `yaml:"checker"`
	Provider provider.Config    `yaml:"provider"`
	Notifier notify.Config      `yaml:"notifier"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// CheckerConfig holds scheduling, retry and matching settings.
type CheckerConfig struct {
	MaxAttempts        int           `yaml:"max_attempts"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	RateLimitPerSecond int           `yaml:"rate_limit_per_second"`
	WorkerCount        int           `yaml:"worker_count"`
	MatchOfferTTL      time.Duration `yaml:"match_offer_ttl"`
	RescanInterval     time.Duration `yaml:"rescan_interval"`
	ProviderTimeout    time.Duration `yaml:"provider_timeout"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	InitialSweep       bool          `yaml:"initial_sweep"`
}
