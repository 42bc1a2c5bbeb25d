package catalog

import (
	"regexp"
	"strings"
)

// MaxTokenLen caps the length of a state token.
const MaxTokenLen = 64

var reTokenInvalid = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Sanitize derives a state token from a display name: every run of characters
// outside [A-Za-z0-9_-] becomes one underscore, surrounding underscores are
// trimmed and the result is capped at MaxTokenLen.
//
// The trim is repeated after truncation so a cut that lands on an underscore
// still yields a token that Sanitize maps to itself.
func Sanitize(name string) string {
	if name == "" {
		return ""
	}
	s := reTokenInvalid.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_")
	if len(s) > MaxTokenLen {
		s = strings.TrimRight(s[:MaxTokenLen], "_")
	}
	return s
}
