// Package quoting implements the Name-Quoter: the rule deciding
// whether a TMDL identifier needs single-quoting, and its inverse for
// the parser.
package quoting

import "strings"

// needsQuote reports whether s must be single-quoted: true for the
// empty string and for anything that is not a bare identifier
// ([A-Za-z_][A-Za-z0-9_]*), e.g. a name containing a space, '-', '.',
// a bracket or a quote, or one starting with a digit.
func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return true
		}
	}
	return false
}

// Quote returns s unchanged when it is a bare TMDL identifier
// ([A-Za-z_][A-Za-z0-9_]*), otherwise wraps it in single quotes with
// internal single quotes doubled.
func Quote(s string) string {
	if !needsQuote(s) {
		return s
	}
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

// Unquote is the parser-side inverse of Quote: given raw TMDL text for
// an identifier (quoted or bare), it returns the underlying name. It
// accepts both forms so the differ can normalise either representation
// before comparing.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		inner := s[1 : len(s)-1]
		return strings.ReplaceAll(inner, "''", "'")
	}
	return s
}
