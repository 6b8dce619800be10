package title

import (
	"strings"

	"github.com/go-go-golems/parley/pkg/conversation"
)

const (
	maxWords   = 6
	maxLength  = 50
	truncateAt = 47
	ellipsis   = "…"
)

// Generate derives a short conversation title from the first user message:
// the first six whitespace-separated words joined by single spaces, truncated
// to 47 characters plus an ellipsis when the join exceeds 50, with the
// default title for empty input. Deterministic, no side effects.
func Generate(text string) string {
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}

	ret := strings.Join(words, " ")
	if runes := []rune(ret); len(runes) > maxLength {
		ret = string(runes[:truncateAt]) + ellipsis
	}
	if ret == "" {
		return conversation.DefaultTitle
	}

	return ret
}
