package contextwindow

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter reports the token cost of a piece of text.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with a tiktoken codec. Text that fails to
// encode falls back to the character heuristic so that window selection can
// never fail.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

func NewTiktokenCounter(encoding tokenizer.Encoding) (*TiktokenCounter, error) {
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load tokenizer codec %s", encoding)
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (c *TiktokenCounter) CountTokens(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return (len(text) + DefaultCharsPerToken - 1) / DefaultCharsPerToken
	}
	return len(ids)
}

var _ TokenCounter = (*TiktokenCounter)(nil)
