package outline

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lamim/deckforge/pkg/models"
)

// ParseField resolves a field name typed by a user. Case and dashes are ignored.
func ParseField(name string) (Field, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	switch normalized {
	case "bullets", "bulletpoints":
		normalized = string(FieldBulletPoints)
	case "datapoints", "data":
		normalized = string(FieldDataPoints)
	}

	f := Field(normalized)
	if !f.Valid() {
		return "", &ValidationError{Message: fmt.Sprintf("unknown field %q (expected one of %s)", name, fieldList())}
	}
	return f, nil
}

// ParseValue converts command-line text into the value type SetSlideField
// expects for field. Bullet points are separated by newlines or, on a single
// line, by "|". Data points are a JSON or YAML list of objects.
func ParseValue(field Field, text string) (interface{}, error) {
	switch field {
	case FieldTitle, FieldIcon, FieldNotes:
		return text, nil

	case FieldBulletPoints:
		return splitBullets(text), nil

	case FieldLayout:
		layout, err := models.ParseLayout(strings.TrimSpace(text))
		if err != nil {
			return nil, &ValidationError{Field: field, Message: err.Error()}
		}
		return layout, nil

	case FieldDataPoints:
		if strings.TrimSpace(text) == "" {
			return []models.DataPoint{}, nil
		}
		var points []models.DataPoint
		if err := yaml.Unmarshal([]byte(text), &points); err != nil {
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("expected a list of {label, value} objects: %v", err)}
		}
		return points, nil

	default:
		return nil, &ValidationError{Field: field, Message: "unknown field"}
	}
}

func splitBullets(text string) []string {
	sep := "\n"
	if !strings.Contains(text, "\n") {
		sep = "|"
	}

	bullets := []string{}
	for _, part := range strings.Split(text, sep) {
		if b := strings.TrimSpace(part); b != "" {
			bullets = append(bullets, b)
		}
	}
	return bullets
}

func fieldList() string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
