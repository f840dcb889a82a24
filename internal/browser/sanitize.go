// File: internal/browser/sanitize.go
package browser

import "strings"

// SanitizeText removes every rune outside the basic multilingual plane.
// CDP key-event dispatch only carries 16-bit code points, so supplementary
// characters (emoji and similar) cannot be typed into form fields and are
// dropped before submission. The second return reports whether anything was
// removed.
func SanitizeText(text string) (string, bool) {
	var b strings.Builder
	modified := false
	for _, r := range text {
		if r > 0xFFFF {
			modified = true
			continue
		}
		b.WriteRune(r)
	}
	if !modified {
		return text, false
	}
	return b.String(), true
}
