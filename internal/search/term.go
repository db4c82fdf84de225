// Package search normalizes user-entered search terms and turns them into
// SQL LIKE patterns for the list endpoints.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// LikeEscape is the escape character used in generated LIKE patterns.
const LikeEscape = "!"

// MaxTermRunes caps the length of a normalized term.
const MaxTermRunes = 100

// Normalize returns term in NFC form with surrounding whitespace removed,
// inner whitespace runs collapsed to one space and control characters
// dropped. The result is truncated to MaxTermRunes.
func Normalize(term string) string {
	term = norm.NFC.String(term)

	var b strings.Builder
	b.Grow(len(term))
	prevSpace := true // drops leading space
	n := 0
	for _, r := range term {
		if n >= MaxTermRunes {
			break
		}
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
				n++
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		prevSpace = false
		b.WriteRune(r)
		n++
	}
	return strings.TrimRight(b.String(), " ")
}

// EscapeLike escapes LIKE wildcards and the escape character itself.
func EscapeLike(s string) string {
	r := strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "%", LikeEscape+"%", "_", LikeEscape+"_")
	return r.Replace(s)
}

// ContainsPattern returns a lower-cased, escaped "%term%" pattern, to be
// compared against LOWER(column) with ESCAPE LikeEscape.
func ContainsPattern(term string) string {
	lower := cases.Lower(language.Und).String(Normalize(term))
	return "%" + EscapeLike(lower) + "%"
}
