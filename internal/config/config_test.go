package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Backend.BaseURL = "" },
			wantErr: "backend.base_url is required",
		},
		{
			name:    "rate limit too high",
			mutate:  func(c *Config) { c.Backend.RateLimitPerMinute = MaxRateLimitPerMinute + 1 },
			wantErr: "rate_limit_per_minute must not exceed",
		},
		{
			name:    "poll interval too short",
			mutate:  func(c *Config) { c.Poller.IntervalMs = 10 },
			wantErr: "poller.interval_ms must be at least",
		},
		{
			name:    "unknown theme",
			mutate:  func(c *Config) { c.Defaults.Theme = "neon" },
			wantErr: "defaults.theme must be one of",
		},
		{
			name:    "slide count below range",
			mutate:  func(c *Config) { c.Defaults.SlideCount = 2 },
			wantErr: "defaults.slide_count must be between",
		},
		{
			name:    "slide count above range",
			mutate:  func(c *Config) { c.Defaults.SlideCount = 31 },
			wantErr: "defaults.slide_count must be between",
		},
		{
			name:    "unsupported target format",
			mutate:  func(c *Config) { c.Defaults.TargetFormat = "xlsx" },
			wantErr: "defaults.target_format",
		},
		{
			name:   "dotted target format accepted",
			mutate: func(c *Config) { c.Defaults.TargetFormat = ".PDF" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Config.Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Config.Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)

	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("Expected default base_url, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutSeconds != 120 {
		t.Errorf("Expected timeout 120, got %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Poller.Interval().Seconds() != 1 {
		t.Errorf("Expected 1s poll interval, got %s", cfg.Poller.Interval())
	}
	if cfg.Poller.FailureLimit() != 30 {
		t.Errorf("Expected failure limit 30, got %d", cfg.Poller.FailureLimit())
	}
	if cfg.Defaults.Model != "gpt-4o" || cfg.Defaults.Theme != "business" || cfg.Defaults.SlideCount != 10 {
		t.Errorf("Unexpected defaults: %+v", cfg.Defaults)
	}
}

func TestNegativeValuesDisable(t *testing.T) {
	cfg := Config{
		Backend: BackendConfig{MaxRetries: -1, TimeoutSeconds: -1},
		Poller:  PollerConfig{MaxFailures: -1},
	}
	applyDefaults(&cfg)

	if got := cfg.Backend.Retries(); got != 0 {
		t.Errorf("Retries() = %d, want 0", got)
	}
	if got := cfg.Backend.Timeout(); got != 0 {
		t.Errorf("Timeout() = %s, want 0", got)
	}
	if got := cfg.Poller.FailureLimit(); got != 0 {
		t.Errorf("FailureLimit() = %d, want 0", got)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[backend]
base_url = "https://slides.example.com"
rate_limit_per_minute = 120

[poller]
interval_ms = 500

[defaults]
model = "deepseek-chat"
theme = "tech"
slide_count = 12
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DECKFORGE_API_URL", "")
	t.Setenv("DECKFORGE_API_KEY", "secret")

	cfg, secrets, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://slides.example.com" {
		t.Errorf("base_url = %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RateLimitPerMinute != 120 {
		t.Errorf("rate_limit_per_minute = %d", cfg.Backend.RateLimitPerMinute)
	}
	if cfg.Poller.IntervalMs != 500 {
		t.Errorf("interval_ms = %d", cfg.Poller.IntervalMs)
	}
	if cfg.Defaults.Model != "deepseek-chat" || cfg.Defaults.Theme != "tech" || cfg.Defaults.SlideCount != 12 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	// Unset values still get defaults
	if cfg.Defaults.TargetFormat != "pdf" {
		t.Errorf("target_format = %s, want pdf", cfg.Defaults.TargetFormat)
	}
	if secrets.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", secrets.APIKey)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend:
  base_url: https://yaml.example.com
defaults:
  theme: creative
output:
  dir: decks
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DECKFORGE_API_URL", "")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://yaml.example.com" {
		t.Errorf("base_url = %s", cfg.Backend.BaseURL)
	}
	if cfg.Defaults.Theme != "creative" {
		t.Errorf("theme = %s", cfg.Defaults.Theme)
	}
	if cfg.Output.Dir != "decks" {
		t.Errorf("output.dir = %s", cfg.Output.Dir)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DECKFORGE_API_URL", "https://env.example.com")

	cfg, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://env.example.com" {
		t.Errorf("Expected env override, got %s", cfg.Backend.BaseURL)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[backend\nbase_url = "), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Load(path); err == nil {
		t.Fatal("Expected parse error, got nil")
	}
}

func TestDefaultConfigTOMLLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(GetDefaultConfigTOML()), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DECKFORGE_API_URL", "")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("base_url = %s", cfg.Backend.BaseURL)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DECKFORGE_TEST_VALUE=\"from-file\"\n# comment\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DECKFORGE_TEST_VALUE", "")
	_ = os.Unsetenv("DECKFORGE_TEST_VALUE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv("DECKFORGE_TEST_VALUE"); got != "from-file" {
		t.Errorf("DECKFORGE_TEST_VALUE = %q, want from-file", got)
	}
}
