// Package normalize canonicalizes free-text player and team names so that the
// same real-world name compares equal regardless of source formatting.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var suffixes = map[string]struct{}{
	"jr": {}, "sr": {},
	"ii": {}, "iii": {}, "iv": {}, "v": {},
	"vi": {}, "vii": {}, "viii": {}, "ix": {},
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Name lowercases, folds diacritics, strips punctuation (separator
// punctuation splits tokens instead), collapses whitespace and drops trailing
// generational suffix tokens. Name(Name(x)) == Name(x).
func Name(s string) string {
	fields := strings.Fields(s)
	// A suffix is only dropped when it is the last token and something is
	// left in front of it. Repeats so stacked suffixes cannot break
	// idempotence ("john ii iii" and its once-stripped form agree).
	for len(fields) >= 2 {
		if _, ok := suffixes[foldToken(fields[len(fields)-1])]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	s = strings.Join(fields, " ")

	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	s = stripPunct(s)
	return strings.Join(strings.Fields(s), " ")
}

// Suffix returns the recognized generational suffix of a name, lowercased with
// punctuation removed, or "" when the last token is not one.
func Suffix(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return ""
	}
	last := foldToken(fields[len(fields)-1])
	if _, ok := suffixes[last]; ok {
		return last
	}
	return ""
}

func foldToken(tok string) string {
	return stripPunct(strings.ToLower(tok))
}

func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '-' || r == '–' || r == '/':
			// Separators split tokens: "Karl-Anthony" must equal
			// "Karl Anthony". Other punctuation just disappears, so
			// "D'Angelo" stays "dangelo" and "P.J." stays "pj".
			b.WriteRune(' ')
		}
	}
	return b.String()
}
