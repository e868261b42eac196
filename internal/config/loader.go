package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file and environment variables.
// A missing config file is not an error: defaults are used instead.
func Load(configPath string) (*Config, *Secrets, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := decode(configPath, data, &cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Fall through to defaults
	default:
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return &cfg, secrets, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win over the file.
func LoadEnvFile(path string) error {
	return godotenv.Load(path)
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("DECKFORGE_API_URL"); url != "" {
		cfg.Backend.BaseURL = url
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8000"
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 120
	}
	if cfg.Backend.RateLimitPerMinute == 0 {
		cfg.Backend.RateLimitPerMinute = 300
	}
	// NOTE: In TOML we can't distinguish 0 from unset, so -1 switches retries off
	if cfg.Backend.MaxRetries == 0 {
		cfg.Backend.MaxRetries = 3
	}
	if cfg.Backend.BaseRetryDelayMs == 0 {
		cfg.Backend.BaseRetryDelayMs = 500
	}

	if cfg.Poller.IntervalMs == 0 {
		cfg.Poller.IntervalMs = 1000
	}
	if cfg.Poller.MaxFailures == 0 {
		cfg.Poller.MaxFailures = 30
	}

	if cfg.Defaults.Model == "" {
		cfg.Defaults.Model = "gpt-4o"
	}
	if cfg.Defaults.Theme == "" {
		cfg.Defaults.Theme = "business"
	}
	if cfg.Defaults.SlideCount == 0 {
		cfg.Defaults.SlideCount = 10
	}
	if cfg.Defaults.TargetFormat == "" {
		cfg.Defaults.TargetFormat = "pdf"
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
}
