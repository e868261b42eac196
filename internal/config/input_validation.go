package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	// MaxModelNameLength is the maximum allowed length for model names
	MaxModelNameLength = 100

	// MaxBaseURLLength is the maximum allowed length for the backend URL
	MaxBaseURLLength = 2048
)

// ValidateInputs performs additional security validation on user-controllable fields.
// This rejects malformed URLs, control characters and path escapes before any
// request is made.
func (c *Config) ValidateInputs() error {
	if err := validateBaseURL(c.Backend.BaseURL); err != nil {
		return err
	}

	if err := ValidateModelName(c.Defaults.Model); err != nil {
		return fmt.Errorf("invalid defaults.model: %w", err)
	}

	if err := validateOutputDir(c.Output.Dir); err != nil {
		return fmt.Errorf("invalid output.dir: %w", err)
	}

	return nil
}

// ValidateModelName checks a model identifier for length and control characters
func ValidateModelName(modelName string) error {
	if len(modelName) > MaxModelNameLength {
		return fmt.Errorf("exceeds maximum length of %d (got %d)", MaxModelNameLength, len(modelName))
	}

	if containsControlChars(modelName) {
		return fmt.Errorf("contains invalid control characters")
	}

	return nil
}

// validateBaseURL checks that the base URL is properly formatted and safe
func validateBaseURL(baseURL string) error {
	if len(baseURL) > MaxBaseURLLength {
		return fmt.Errorf("backend.base_url exceeds maximum length of %d", MaxBaseURLLength)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url is invalid: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https scheme (got %s)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("backend.base_url must have a host")
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("backend.base_url must not contain a query or fragment")
	}

	return nil
}

// validateOutputDir rejects control characters and relative paths that climb
// out of the working directory
func validateOutputDir(dir string) error {
	if containsControlChars(dir) || strings.ContainsAny(dir, "\n\r\t") {
		return fmt.Errorf("contains invalid control characters")
	}
	if !filepath.IsAbs(dir) {
		clean := filepath.Clean(dir)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("must not escape the working directory")
		}
	}
	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
