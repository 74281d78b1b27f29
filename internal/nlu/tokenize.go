package nlu

import (
	"strings"
	"unicode"
)

// tokenize lowercases text and splits it on anything that is not a letter or a digit.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atWordBoundary reports whether text[start:end] is not glued to surrounding word characters.
func atWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r := lastRune(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r := firstRune(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
