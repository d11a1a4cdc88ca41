package util

import (
	"html"
	"strings"
	"unicode"
)

// SanitizeInput trims the text, collapses runs of whitespace and control
// characters into single spaces and escapes HTML.
func SanitizeInput(s string) string {
	return html.EscapeString(NormalizeSpace(s))
}

// NormalizeSpace trims s and collapses internal whitespace runs. Newlines are
// kept so multi-line comments survive.
func NormalizeSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	pendingNewline := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '\n':
			pendingNewline = true
		case unicode.IsSpace(r) || unicode.IsControl(r):
			pendingSpace = true
		default:
			if pendingNewline {
				b.WriteByte('\n')
			} else if pendingSpace {
				b.WriteByte(' ')
			}
			pendingSpace, pendingNewline = false, false
			b.WriteRune(r)
		}
	}
	return b.String()
}
