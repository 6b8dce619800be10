package contextwindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiktoken-go/tokenizer"

	"github.com/go-go-golems/parley/pkg/conversation"
)

func TestTiktokenCounterCountsRealTokens(t *testing.T) {
	counter, err := NewTiktokenCounter(tokenizer.Cl100kBase)
	require.NoError(t, err)

	assert.Equal(t, 2, counter.CountTokens("hello world"))
	assert.Equal(t, 0, counter.CountTokens(""))
}

func TestNewTiktokenCounterRejectsUnknownEncoding(t *testing.T) {
	_, err := NewTiktokenCounter(tokenizer.Encoding("no-such-encoding"))
	require.Error(t, err)
}

func TestSelectWindowWithTiktokenCounter(t *testing.T) {
	counter, err := NewTiktokenCounter(tokenizer.Cl100kBase)
	require.NoError(t, err)
	m := NewManager(WithTokenCounter(counter))

	base := time.Now()
	msgs := []*conversation.Message{
		conversation.NewMessage(conversation.RoleUser,
			"one two three four five six seven eight",
			conversation.WithTime(base)),
		conversation.NewMessage(conversation.RoleAssistant,
			"hi",
			conversation.WithTime(base.Add(time.Second))),
	}

	// the older message alone exceeds four tokens, the newest fits
	w := m.SelectWindow(msgs, 4)
	require.Equal(t, 1, w.Kept)
	assert.Equal(t, "hi", w.Messages[0].Text)
	assert.True(t, w.Trimmed())
}
