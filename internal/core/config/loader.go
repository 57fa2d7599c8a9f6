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

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is given.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Bus.PollInterval == 0 {
		cfg.Bus.PollInterval = Duration(500 * time.Millisecond)
	}
	if cfg.Review.DefaultTTL == 0 {
		cfg.Review.DefaultTTL = Duration(24 * time.Hour)
	}
	if cfg.Review.SweepInterval == 0 {
		cfg.Review.SweepInterval = Duration(time.Minute)
	}
	if cfg.Review.LaterDelay == 0 {
		cfg.Review.LaterDelay = Duration(24 * time.Hour)
	}
	if cfg.Review.ReminderPoll == 0 {
		cfg.Review.ReminderPoll = Duration(30 * time.Second)
	}
	if cfg.Review.ReminderResubmitTTL == 0 {
		cfg.Review.ReminderResubmitTTL = Duration(24 * time.Hour)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = Duration(time.Second)
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = Duration(time.Minute)
	}
	if cfg.Retry.FailureThreshold == 0 {
		cfg.Retry.FailureThreshold = 5
	}
	if cfg.Retry.RecoveryTimeout == 0 {
		cfg.Retry.RecoveryTimeout = Duration(time.Minute)
	}
}
