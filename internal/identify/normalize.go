// Package identify implements the medication identification pipeline: it
// turns noisy OCR text into a deduplicated, confidence-ranked list of
// medication matches by combining exact dictionary matching, pattern-based
// extraction, and classifier scoring, followed by consolidation.
package identify

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize returns the canonical lowercase form of a medication name used
// for equality and lookups. Characters outside letters, digits and spaces are
// stripped and whitespace runs collapse to single spaces. Empty input returns
// empty output.
func Normalize(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// TitleCase returns the display form of a medication name: normalized, then
// each token title-cased ("TYLENOL 500" -> "Tylenol 500").
func TitleCase(raw string) string {
	normalized := Normalize(raw)
	if normalized == "" {
		return ""
	}
	// cases.Caser is not safe for concurrent use; construct per call.
	return cases.Title(language.English).String(normalized)
}
