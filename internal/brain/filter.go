package brain

import (
	"strings"
	"unicode/utf8"
)

const maxCommentRunes = 200

// CommentFilter screens automated chat comments before they become
// questions. Direct submissions bypass it.
type CommentFilter struct {
	// SkipPrefixes drop bot commands and emote spam.
	SkipPrefixes []string
}

func NewCommentFilter() *CommentFilter {
	return &CommentFilter{
		SkipPrefixes: []string{"!", "！", "/", "#"},
	}
}

// ShouldProcess reports whether a chat comment is worth answering.
func (f *CommentFilter) ShouldProcess(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, p := range f.SkipPrefixes {
		if strings.HasPrefix(text, p) {
			return false
		}
	}
	if strings.Contains(text, "http://") || strings.Contains(text, "https://") {
		return false
	}
	if utf8.RuneCountInString(text) > maxCommentRunes {
		return false
	}
	return true
}
