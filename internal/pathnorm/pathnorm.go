// Package pathnorm implements the canonical-name rule entries are keyed by
// in the GRF directory, and the glob-to-regexp compiler used for directory
// listing and patch targeting.
package pathnorm

import (
	"regexp"
	"strings"
)

// Normalize converts name to its canonical directory-map key: byte-wise
// ASCII-only lowercasing, forward slashes rewritten to backslashes, and a
// single leading backslash stripped.
//
// The lowercase step deliberately does NOT use strings.ToLower or any
// Unicode-aware fold: legacy directory names are stored in a multibyte
// legacy encoding whose high-bit trail bytes must pass through unchanged.
// Folding them as Unicode would corrupt the trail byte of any double-byte
// character whose second byte happens to land in the Latin uppercase range.
func Normalize(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 0x20
		}
		// bytes >= 0x80 pass through unchanged, as do already-lowercase
		// and punctuation bytes.
	}
	for i, c := range b {
		if c == '/' {
			b[i] = '\\'
		}
	}
	if len(b) > 0 && b[0] == '\\' {
		b = b[1:]
	}
	return string(b)
}

// CompileGlob turns a shell-style glob ('*' -> any run of characters other
// than '\', '?' -> any one char, '.' is literal, '/' is folded to '\') into a
// case-insensitive
// anchored regexp matcher. A malformed pattern yields a matcher that matches
// nothing, never an error — callers treat glob filters as best-effort.
func CompileGlob(pattern string) *regexp.Regexp {
	p := strings.ReplaceAll(pattern, "/", "\\")

	var sb strings.Builder
	sb.WriteString("(?i)^")
	for _, r := range p {
		switch r {
		case '*':
			// Stop at the path separator: a glob segment must not cross
			// into a subdirectory (spec §8 scenario 5).
			sb.WriteString(`[^\\]*`)
		case '?':
			sb.WriteByte('.')
		case '.':
			sb.WriteString(`\.`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		// Never observed in practice given the escaping above, but honor
		// the "malformed pattern yields no match" contract unconditionally.
		return regexp.MustCompile(`$.^`)
	}
	return re
}
