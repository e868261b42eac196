package models

import "strings"

// Theme is the visual style the backend applies when rendering
type Theme string

const (
	ThemeBusiness Theme = "business"
	ThemeTech     Theme = "tech"
	ThemeCreative Theme = "creative"
)

// Themes lists every theme the backend accepts
var Themes = []Theme{ThemeBusiness, ThemeTech, ThemeCreative}

// Valid reports whether t is a known theme
func (t Theme) Valid() bool {
	for _, known := range Themes {
		if t == known {
			return true
		}
	}
	return false
}

// TemplateExtension is the only accepted template file type
const TemplateExtension = ".pptx"

// conversions maps a source extension to the target formats the converter supports
var conversions = map[string][]string{
	".ppt":  {"pdf"},
	".pptx": {"pdf"},
	".doc":  {"pdf"},
	".docx": {"pdf"},
	".pdf":  {"docx", "doc", "pptx", "ppt"},
}

// NormalizeFormat lowercases a target format and strips a leading dot
func NormalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

// ConversionSupported reports whether a file with extension srcExt (".pptx")
// can be converted into targetFormat ("pdf")
func ConversionSupported(srcExt, targetFormat string) bool {
	targets, ok := conversions[strings.ToLower(srcExt)]
	if !ok {
		return false
	}
	target := NormalizeFormat(targetFormat)
	for _, t := range targets {
		if t == target {
			return true
		}
	}
	return false
}

// KnownTargetFormat reports whether format is a conversion target for any source
func KnownTargetFormat(format string) bool {
	target := NormalizeFormat(format)
	for _, targets := range conversions {
		for _, t := range targets {
			if t == target {
				return true
			}
		}
	}
	return false
}
