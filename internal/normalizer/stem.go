package normalizer

import "strings"

// Stem reduces an a-z word to its root using the Porter suffix-stripping
// rules, re-applied until the word stops changing. Every pass either
// shortens the word or turns a trailing y into i, so the loop terminates, and
// the fixpoint makes Stem(Stem(w)) == Stem(w).
func Stem(word string) string {
	for {
		next := porter(word)
		if next == word {
			return word
		}
		word = next
	}
}

type rule struct {
	suffix      string
	replacement string
}

var step2Rules = []rule{
	{"ational", "ate"},
	{"tional", "tion"},
	{"enci", "ence"},
	{"anci", "ance"},
	{"izer", "ize"},
	{"abli", "able"},
	{"alli", "al"},
	{"entli", "ent"},
	{"eli", "e"},
	{"ousli", "ous"},
	{"ization", "ize"},
	{"ation", "ate"},
	{"ator", "ate"},
	{"alism", "al"},
	{"iveness", "ive"},
	{"fulness", "ful"},
	{"ousness", "ous"},
	{"aliti", "al"},
	{"iviti", "ive"},
	{"biliti", "ble"},
}

var step3Rules = []rule{
	{"icate", "ic"},
	{"ative", ""},
	{"alize", "al"},
	{"iciti", "ic"},
	{"ical", "ic"},
	{"ful", ""},
	{"ness", ""},
}

// Longer suffixes precede the shorter ones they end with.
var step4Suffixes = []string{
	"ement", "ment", "ance", "ence", "able", "ible",
	"ant", "ent", "ion", "ism", "ate", "iti", "ous", "ive", "ize",
	"al", "er", "ic", "ou",
}

func porter(w string) string {
	if len(w) <= 2 {
		return w
	}
	w = step1a(w)
	w = step1b(w)
	w = step1c(w)
	w = replaceFirst(w, step2Rules, 0)
	w = replaceFirst(w, step3Rules, 0)
	w = step4(w)
	w = step5(w)
	return w
}

func step1a(w string) string {
	switch {
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

func step1b(w string) string {
	if strings.HasSuffix(w, "eed") {
		if measure(w[:len(w)-3]) > 0 {
			return w[:len(w)-1]
		}
		return w
	}
	var stem string
	switch {
	case strings.HasSuffix(w, "ed"):
		stem = w[:len(w)-2]
	case strings.HasSuffix(w, "ing"):
		stem = w[:len(w)-3]
	default:
		return w
	}
	if !hasVowel(stem) {
		return w
	}
	switch {
	case strings.HasSuffix(stem, "at"), strings.HasSuffix(stem, "bl"), strings.HasSuffix(stem, "iz"):
		return stem + "e"
	case endsDoubleConsonant(stem):
		last := stem[len(stem)-1]
		if last != 'l' && last != 's' && last != 'z' {
			return stem[:len(stem)-1]
		}
	case measure(stem) == 1 && endsCVC(stem):
		return stem + "e"
	}
	return stem
}

func step1c(w string) string {
	if strings.HasSuffix(w, "y") && hasVowel(w[:len(w)-1]) {
		return w[:len(w)-1] + "i"
	}
	return w
}

// replaceFirst applies the first rule whose suffix matches, provided the
// remaining stem has measure > minMeasure. Only one rule is ever considered.
func replaceFirst(w string, rules []rule, minMeasure int) string {
	for _, r := range rules {
		if !strings.HasSuffix(w, r.suffix) {
			continue
		}
		stem := w[:len(w)-len(r.suffix)]
		if measure(stem) > minMeasure {
			return stem + r.replacement
		}
		return w
	}
	return w
}

func step4(w string) string {
	for _, suffix := range step4Suffixes {
		if !strings.HasSuffix(w, suffix) {
			continue
		}
		stem := w[:len(w)-len(suffix)]
		if measure(stem) <= 1 {
			return w
		}
		if suffix == "ion" && !(strings.HasSuffix(stem, "s") || strings.HasSuffix(stem, "t")) {
			return w
		}
		return stem
	}
	return w
}

func step5(w string) string {
	if strings.HasSuffix(w, "e") {
		stem := w[:len(w)-1]
		m := measure(stem)
		if m > 1 || (m == 1 && !endsCVC(stem)) {
			w = stem
		}
	}
	if strings.HasSuffix(w, "ll") && measure(w) > 1 {
		w = w[:len(w)-1]
	}
	return w
}

func isConsonant(w string, i int) bool {
	switch w[i] {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	case 'y':
		return i == 0 || !isConsonant(w, i-1)
	}
	return true
}

// measure counts VC sequences in w, the m of [C](VC){m}[V].
func measure(w string) int {
	n, i := 0, 0
	for i < len(w) && isConsonant(w, i) {
		i++
	}
	for i < len(w) {
		for i < len(w) && !isConsonant(w, i) {
			i++
		}
		if i >= len(w) {
			break
		}
		for i < len(w) && isConsonant(w, i) {
			i++
		}
		n++
	}
	return n
}

func hasVowel(w string) bool {
	for i := range len(w) {
		if !isConsonant(w, i) {
			return true
		}
	}
	return false
}

func endsDoubleConsonant(w string) bool {
	l := len(w)
	return l >= 2 && w[l-1] == w[l-2] && isConsonant(w, l-1)
}

// endsCVC reports consonant-vowel-consonant at the end where the final
// consonant is not w, x or y.
func endsCVC(w string) bool {
	l := len(w)
	if l < 3 || !isConsonant(w, l-1) || isConsonant(w, l-2) || !isConsonant(w, l-3) {
		return false
	}
	switch w[l-1] {
	case 'w', 'x', 'y':
		return false
	}
	return true
}
