// Package textnorm canonicalizes free-form question text so that two
// differently punctuated renderings of the same question map to the same
// cache key.
package textnorm

import (
	"strings"
	"unicode"
)

// stripRunes lists punctuation that carries no meaning for cache-key
// comparison: Japanese terminal punctuation, quotation and bracket marks,
// ellipses, and common ASCII sentence punctuation.
var stripRunes = map[rune]struct{}{
	'。': {}, '、': {}, '！': {}, '？': {}, '．': {}, '，': {},
	'・': {}, '…': {}, '‥': {},
	'「': {}, '」': {}, '『': {}, '』': {}, '（': {}, '）': {},
	'【': {}, '】': {}, '〈': {}, '〉': {},
	'"': {}, '\'': {}, '“': {}, '”': {}, '‘': {}, '’': {},
	'.': {}, ',': {}, '!': {}, '?': {}, ';': {}, ':': {},
	'(': {}, ')': {}, '[': {}, ']': {}, '~': {}, '〜': {},
}

// Normalize returns the canonical cache key for text. It strips the fixed
// punctuation class above plus all whitespace (including full-width space).
// Deterministic and idempotent; empty or whitespace-only input yields "".
// The empty string must never be used as a cache key.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if _, drop := stripRunes[r]; drop {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
