package writer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lamim/deckforge/pkg/models"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// MarshalOutline encodes doc as YAML or JSON depending on path's extension
func MarshalOutline(path string, doc models.Outline) ([]byte, error) {
	if isYAML(path) {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode outline: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode outline: %w", err)
		}
		return buf.Bytes(), nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode outline: %w", err)
	}
	return append(data, '\n'), nil
}

// SaveOutline writes doc to path atomically (temp file, then rename)
func SaveOutline(path string, doc models.Outline) error {
	data, err := MarshalOutline(path, doc)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create outline directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp outline: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename outline: %w", err)
	}
	return nil
}

// LoadOutline reads an outline file, fills defaults and validates it
func LoadOutline(path string) (models.Outline, error) {
	var doc models.Outline

	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read outline: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return doc, fmt.Errorf("failed to parse outline %s: %w", path, err)
	}

	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return doc, fmt.Errorf("invalid outline %s: %w", path, err)
	}
	return doc, nil
}
