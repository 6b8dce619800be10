package chat

import "github.com/pkg/errors"

var (
	// ErrNoModelLoaded is returned by operations that need the inference
	// backend when no model is resident.
	ErrNoModelLoaded = errors.New("no model loaded")

	// ErrNoConversation is returned by SendMessage when no conversation is
	// current.
	ErrNoConversation = errors.New("no conversation")

	// ErrEmptyMessage is returned by SendMessage for blank or
	// whitespace-only input.
	ErrEmptyMessage = errors.New("empty message")
)
