package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const runTimeFormat = "2006-01-02T15-04-05"

// SessionManager owns the run directory of one CLI invocation
type SessionManager struct {
	outputDir string
	runDir    string
	runID     string
	logger    *slog.Logger
}

// NewSessionManager creates output/run_<timestamp> under outputDir, or reuses
// the existing run directory named by resumeRun.
func NewSessionManager(outputDir, resumeRun string, logger *slog.Logger) (*SessionManager, error) {
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var runDir string
	if resumeRun != "" {
		if err := ValidateRunName(outputDir, resumeRun); err != nil {
			return nil, err
		}
		runDir = filepath.Join(outputDir, resumeRun)
		if _, err := os.Stat(runDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("run directory not found: %s", runDir)
		}
		logger.Info("Reusing run directory", "path", runDir)
	} else {
		runDir = filepath.Join(outputDir, "run_"+time.Now().Format(runTimeFormat))
		if err := os.MkdirAll(runDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
		logger.Debug("Created run directory", "path", runDir)
	}

	return &SessionManager{
		outputDir: outputDir,
		runDir:    runDir,
		runID:     uuid.NewString(),
		logger:    logger,
	}, nil
}

// SetLogger swaps the logger once the run's own logger exists
func (sm *SessionManager) SetLogger(logger *slog.Logger) {
	sm.logger = logger
}

// RunDir returns the run directory path
func (sm *SessionManager) RunDir() string {
	return sm.runDir
}

// RunID identifies this invocation in logs
func (sm *SessionManager) RunID() string {
	return sm.runID
}

// LogPath returns the full path to the session log file
func (sm *SessionManager) LogPath() string {
	return filepath.Join(sm.runDir, "session.log")
}

// OutlinePath returns where the run keeps its working outline
func (sm *SessionManager) OutlinePath() string {
	return filepath.Join(sm.runDir, "outline.yaml")
}

// ResultPath returns the destination for a downloaded file. Only the base
// name of filename is used.
func (sm *SessionManager) ResultPath(filename string) string {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		name = "result"
	}
	return filepath.Join(sm.runDir, name)
}

// ConfigBackupPath returns the full path to the config backup
func (sm *SessionManager) ConfigBackupPath(configPath string) string {
	return filepath.Join(sm.runDir, "config"+filepath.Ext(configPath)+".bak")
}

// BackupConfig copies the config file to the run directory. A missing config
// file is skipped.
func (sm *SessionManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := sm.ConfigBackupPath(configPath)
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	sm.logger.Debug("Backed up config file", "path", backupPath)
	return nil
}
