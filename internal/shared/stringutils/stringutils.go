// Package stringutils holds small string helpers shared by log call sites.
package stringutils

import "unicode/utf8"

// Truncate cuts s to at most n bytes for log previews and marks the cut with "...".
// The cut never splits a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
