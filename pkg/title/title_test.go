package title

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-go-golems/parley/pkg/conversation"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "takes first six words",
			input:    "What is the capital of France please tell me",
			expected: "What is the capital of France",
		},
		{
			name:     "short input kept whole",
			input:    "hello there",
			expected: "hello there",
		},
		{
			name:     "collapses whitespace",
			input:    "  hello \t  there\nfriend  ",
			expected: "hello there friend",
		},
		{
			name:     "empty input falls back to default",
			input:    "",
			expected: conversation.DefaultTitle,
		},
		{
			name:     "whitespace-only input falls back to default",
			input:    "   \t\n  ",
			expected: conversation.DefaultTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Generate(tt.input))
		})
	}
}

func TestGenerateTruncatesLongTitles(t *testing.T) {
	input := strings.Repeat("antidisestablishmentarianism ", 6)
	ret := Generate(input)

	runes := []rune(ret)
	assert.Len(t, runes, 48)
	assert.Equal(t, "…", string(runes[47]))
	assert.Equal(t, input[:47], string(runes[:47]))
}

func TestGenerateIsDeterministic(t *testing.T) {
	input := "What is the capital of France please tell me"
	assert.Equal(t, Generate(input), Generate(input))
}
