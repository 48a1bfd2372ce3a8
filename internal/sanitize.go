package internal

import (
	"html"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// DefaultDisplayName is used when a join carries no usable name.
	DefaultDisplayName = "Guest"

	maxDisplayNameRunes = 32
	maxFileNameRunes    = 128
	maxTextRunes        = 4000
)

var plainTextPolicy = bluemonday.StrictPolicy()

// sanitizeDisplayName strips markup and control characters from a claimed
// name, falling back to DefaultDisplayName.
func sanitizeDisplayName(name string) string {
	name = stripMarkup(name)
	name = truncateRunes(stripControl(name, false), maxDisplayNameRunes)
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}
	return name
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	name = stripControl(stripMarkup(name), false)
	return strings.TrimSpace(truncateRunes(name, maxFileNameRunes))
}

// sanitizeText keeps newlines and tabs but drops other control characters.
func sanitizeText(text string) string {
	return truncateRunes(stripControl(text, true), maxTextRunes)
}

func stripMarkup(s string) string {
	return html.UnescapeString(plainTextPolicy.Sanitize(html.UnescapeString(s)))
}

func stripControl(s string, keepLayout bool) string {
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsControl(r) {
			if keepLayout && (r == '\n' || r == '\t') {
				builder.WriteRune(r)
			}
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
