package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	c := &cfg.Checker
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 15 * time.Minute
	}
	if c.RateLimitPerSecond == 0 {
		c.RateLimitPerSecond = 5
	}
	if c.WorkerCount == 0 {
		c.WorkerCount = 4
	}
	if c.MatchOfferTTL == 0 {
		c.MatchOfferTTL = 24 * time.Hour
	}
	if c.RescanInterval == 0 {
		c.RescanInterval = 5 * time.Minute
	}
	if c.ProviderTimeout == 0 {
		c.ProviderTimeout = 15 * time.Second
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 10000
	}
}
