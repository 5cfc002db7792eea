// Package policy holds the content-policy rules applied around answer
// generation: the rejection-phrase screen that keeps known-bad answers out
// of the reuse cache, and the deny-list filter applied before generation.
package policy

import "strings"

// Default stock phrases that mark an answer as a "cannot answer" style
// response. Empirically chosen; override via RejectionSet when tuning.
var defaultRejectionPhrases = []string{
	"答えられません",
	"お答えできません",
	"まだ学習中",
	"エラーが発生",
	"申し訳ありません",
	"申し訳ございません",
}

// RejectionSet screens answer text for stock "cannot answer" phrases.
type RejectionSet struct {
	phrases []string
}

// NewRejectionSet builds a screen from the given phrases; empty falls back
// to the defaults.
func NewRejectionSet(phrases []string) *RejectionSet {
	cleaned := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, defaultRejectionPhrases...)
	}
	return &RejectionSet{phrases: cleaned}
}

// Matches reports whether text contains any rejection phrase.
func (r *RejectionSet) Matches(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range r.phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Phrases returns the active phrase list.
func (r *RejectionSet) Phrases() []string {
	out := make([]string, len(r.phrases))
	copy(out, r.phrases)
	return out
}
