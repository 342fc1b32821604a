package tmdl

import (
	"os"
	"strings"
)

// NormalizeToCRLF collapses any CR/LF variant in s to bare LF, then
// re-expands to CRLF. Every TMDL file the builder reads or writes goes
// through this so comparisons and re-emission never depend on the
// host's native line ending.
func NormalizeToCRLF(s string) string {
	lf := strings.ReplaceAll(s, "\r\n", "\n")
	lf = strings.ReplaceAll(lf, "\r", "\n")
	return strings.ReplaceAll(lf, "\n", "\r\n")
}

// ToLF collapses CRLF/CR to bare LF, the form the lexer and parser
// operate on internally.
func ToLF(s string) string {
	lf := strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(lf, "\r", "\n")
}

// WriteFile writes content to path as UTF-8 without a BOM, CRLF line
// endings, overwriting any existing file in place: os.WriteFile
// truncates and rewrites the same path, with no temporary file or
// rename step.
func WriteFile(path, content string) error {
	return os.WriteFile(path, []byte(NormalizeToCRLF(content)), 0o644)
}
