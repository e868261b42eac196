package config

import (
	"fmt"
	"os"
	"time"

	"github.com/lamim/deckforge/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Backend  BackendConfig  `toml:"backend" yaml:"backend"`
	Poller   PollerConfig   `toml:"poller" yaml:"poller"`
	Defaults DefaultsConfig `toml:"defaults" yaml:"defaults"`
	Output   OutputConfig   `toml:"output" yaml:"output"`
}

// BackendConfig describes how to reach the generation/conversion service
type BackendConfig struct {
	BaseURL            string `toml:"base_url" yaml:"base_url"`
	TimeoutSeconds     int    `toml:"timeout_seconds" yaml:"timeout_seconds"`             // HTTP request timeout (default 120)
	RateLimitPerMinute int    `toml:"rate_limit_per_minute" yaml:"rate_limit_per_minute"` // Client-side cap on requests (default 300)
	MaxRetries         int    `toml:"max_retries" yaml:"max_retries"`                     // Retries for idempotent reads (default 3, -1 = none)
	BaseRetryDelayMs   int    `toml:"base_retry_delay_ms" yaml:"base_retry_delay_ms"`     // Backoff base (default 500)
}

// PollerConfig controls job status polling
type PollerConfig struct {
	IntervalMs  int `toml:"interval_ms" yaml:"interval_ms"`   // Poll cadence (default 1000)
	MaxFailures int `toml:"max_failures" yaml:"max_failures"` // Consecutive fetch failures before giving up (default 30, -1 = never)
}

// DefaultsConfig holds values used when the user does not pass them explicitly
type DefaultsConfig struct {
	Model        string `toml:"model" yaml:"model"`
	Theme        string `toml:"theme" yaml:"theme"`
	SlideCount   int    `toml:"slide_count" yaml:"slide_count"`
	TargetFormat string `toml:"target_format" yaml:"target_format"`
}

// OutputConfig controls where run directories are created
type OutputConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	APIKey string
}

const (
	// MinSlideCount and MaxSlideCount bound the slide count the backend accepts
	MinSlideCount = 5
	MaxSlideCount = 30
	// MaxRateLimitPerMinute is the maximum allowed request rate
	MaxRateLimitPerMinute = 6000
	// MinPollInterval prevents hammering the backend
	MinPollInterval = 100 * time.Millisecond
)

// Timeout returns the HTTP timeout as a duration (0 = no timeout)
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds < 0 {
		return 0
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Retries returns the effective retry count
func (b BackendConfig) Retries() int {
	if b.MaxRetries < 0 {
		return 0
	}
	return b.MaxRetries
}

// BaseRetryDelay returns the exponential backoff base
func (b BackendConfig) BaseRetryDelay() time.Duration {
	return time.Duration(b.BaseRetryDelayMs) * time.Millisecond
}

// Interval returns the polling cadence
func (p PollerConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// FailureLimit returns the consecutive failure cap (0 = unlimited)
func (p PollerConfig) FailureLimit() int {
	if p.MaxFailures < 0 {
		return 0
	}
	return p.MaxFailures
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.RateLimitPerMinute < 1 {
		return fmt.Errorf("backend.rate_limit_per_minute must be at least 1")
	}
	if c.Backend.RateLimitPerMinute > MaxRateLimitPerMinute {
		return fmt.Errorf("backend.rate_limit_per_minute must not exceed %d (got %d)", MaxRateLimitPerMinute, c.Backend.RateLimitPerMinute)
	}
	if c.Backend.MaxRetries > 10 {
		return fmt.Errorf("backend.max_retries must not exceed 10 (got %d)", c.Backend.MaxRetries)
	}
	if c.Backend.BaseRetryDelayMs < 0 {
		return fmt.Errorf("backend.base_retry_delay_ms must not be negative")
	}

	if c.Poller.Interval() < MinPollInterval {
		return fmt.Errorf("poller.interval_ms must be at least %d (got %d)", MinPollInterval.Milliseconds(), c.Poller.IntervalMs)
	}

	if c.Defaults.Model == "" {
		return fmt.Errorf("defaults.model is required")
	}
	if !models.Theme(c.Defaults.Theme).Valid() {
		return fmt.Errorf("defaults.theme must be one of: business, tech, creative (got %s)", c.Defaults.Theme)
	}
	if c.Defaults.SlideCount != 0 && (c.Defaults.SlideCount < MinSlideCount || c.Defaults.SlideCount > MaxSlideCount) {
		return fmt.Errorf("defaults.slide_count must be between %d and %d (got %d)", MinSlideCount, MaxSlideCount, c.Defaults.SlideCount)
	}
	if !models.KnownTargetFormat(c.Defaults.TargetFormat) {
		return fmt.Errorf("defaults.target_format is not a supported conversion target (got %s)", c.Defaults.TargetFormat)
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}

	return nil
}

// LoadSecrets loads sensitive credentials from environment variables
func LoadSecrets() (*Secrets, error) {
	return &Secrets{
		APIKey: os.Getenv("DECKFORGE_API_KEY"),
	}, nil
}
