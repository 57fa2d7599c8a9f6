package config

import (
	"fmt"
	"time"

	redisclient "github.com/subtract0/arbiter/internal/infra/redis"
	"github.com/subtract0/arbiter/internal/infra/storage/postgres"
)

// Duration parses human-readable values like "30s" or "12h" from YAML.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Bus      BusConfig          `yaml:"bus"`
	Review   ReviewConfig       `yaml:"review"`
	Retry    RetryConfig        `yaml:"retry"`

	// RetentionPeriod controls pruning of acknowledged messages and expired
	// questions. 0 = keep forever.
	RetentionPeriod Duration `yaml:"retention_period"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// BusConfig holds message bus settings.
type BusConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
}

// ReviewConfig holds review queue settings.
type ReviewConfig struct {
	DefaultTTL          Duration `yaml:"default_ttl"`           // question expiry when request carries none
	SweepInterval       Duration `yaml:"sweep_interval"`        // how often overdue questions are expired
	LaterDelay          Duration `yaml:"later_delay"`           // reminder offset for LATER decisions
	ReminderPoll        Duration `yaml:"reminder_poll"`         // reminder worker poll interval
	ReminderResubmitTTL Duration `yaml:"reminder_resubmit_ttl"` // expiry for resurfaced questions
}

// RetryConfig holds defaults for wrapped operations.
type RetryConfig struct {
	MaxAttempts      int      `yaml:"max_attempts"`
	InitialDelay     Duration `yaml:"initial_delay"`
	MaxDelay         Duration `yaml:"max_delay"`
	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
}
