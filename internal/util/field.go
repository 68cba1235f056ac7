package util

import "strings"

// CleanField normalizes a CSV cell for storage: NUL and control characters are removed
// (Postgres text columns reject NUL), whitespace runs collapse to one space, ends are trimmed.
func CleanField(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, ch := range s {
		switch {
		case ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t':
			space = true
			continue
		case ch < 0x20 || ch == 0x7f:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(ch)
	}
	return b.String()
}
