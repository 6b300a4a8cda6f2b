// Package normalizer turns free-text findings into the canonical token
// sequence the classifier is trained on. It lower-cases input, strips
// diacritics, drops everything outside a-z, removes stop-words and
// report boilerplate, and stems what remains.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minTokenLen drops single letters left behind by punctuation removal.
const minTokenLen = 2

// Normalize converts text into stemmed tokens, preserving order. It never
// fails: empty or unusable input yields an empty slice. The output is stable
// under re-normalization, i.e. Normalize(strings.Join(Normalize(x), " "))
// equals Normalize(x).
func Normalize(text string) []string {
	if text == "" {
		return []string{}
	}
	folded := fold(text)
	words := strings.Fields(folded)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < minTokenLen || IsStopword(word) {
			continue
		}
		stemmed := Stem(word)
		if len(stemmed) < minTokenLen || IsStopword(stemmed) {
			continue
		}
		tokens = append(tokens, stemmed)
	}
	return tokens
}

// Join re-assembles tokens into a space separated string.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

// fold lower-cases, decomposes and strips combining marks, then replaces
// every rune outside [a-z] and whitespace with a space.
func fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		// Invalid UTF-8 or similar: fall back to the lower-cased input and
		// let the ASCII filter below discard what it cannot use.
		stripped = strings.ToLower(text)
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
