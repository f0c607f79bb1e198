// Package tokenize turns free text into stemmed English word tokens. The same
// rules apply to indexed pages and to queries.
package tokenize

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Tokens strips every rune that is not a letter, digit, hyphen, or whitespace,
// splits on whitespace and hyphens, and stems each surviving word. Order and
// duplicates are preserved.
func Tokens(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', unicode.IsSpace(r):
			return r
		default:
			return -1
		}
	}, text)

	words := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
	out := make([]string, 0, len(words))
	for _, w := range words {
		if stem := Stem(w); stem != "" {
			out = append(out, stem)
		}
	}
	return out
}

// Stem lowercases and stems a single word with the English Porter2 stemmer.
func Stem(word string) string {
	// Stem only fails for unsupported languages.
	stemmed, _ := snowball.Stem(strings.ToLower(word), "english", true)
	return stemmed
}
