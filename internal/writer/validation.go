package writer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Run name format: run_2025-10-30T14-30-00
var runNameRegex = regexp.MustCompile(`^run_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}$`)

// ValidateRunName checks that runName is a plain run directory name that
// stays inside outputDir. It rejects traversal, absolute paths, separators
// and anything not shaped like run_YYYY-MM-DDTHH-MM-SS.
func ValidateRunName(outputDir, runName string) error {
	if runName == "" {
		return fmt.Errorf("run name cannot be empty")
	}

	if strings.Contains(runName, "..") {
		return fmt.Errorf("invalid run name: contains '..' (path traversal attempt)")
	}

	// Separators first so Windows paths get a useful message on every OS
	if strings.ContainsAny(runName, "/\\") {
		return fmt.Errorf("invalid run name: must be directory name without path separators")
	}

	if filepath.IsAbs(runName) {
		return fmt.Errorf("invalid run name: must be relative path")
	}

	if !runNameRegex.MatchString(runName) {
		return fmt.Errorf("invalid run name format: expected 'run_YYYY-MM-DDTHH-MM-SS', got '%s'", runName)
	}

	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(outputDir, runName))
	if err != nil {
		return fmt.Errorf("failed to resolve run path: %w", err)
	}

	// Separator suffix so "/out" does not match "/out-other"
	if !strings.HasPrefix(absPath, absOutput+string(filepath.Separator)) {
		return fmt.Errorf("run path escapes output directory")
	}

	return nil
}
