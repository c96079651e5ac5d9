package inventory

import (
	"strings"
	"unicode"
)

// normalize lowercases s, drops everything that is not an ASCII word
// character or whitespace, and trims the result.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

// singular drops one trailing "s".
func singular(s string) string {
	return strings.TrimSuffix(s, "s")
}

// tokens splits a normalized string on whitespace and singularizes each token.
func tokens(s string) []string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = singular(f)
	}
	return fields
}
