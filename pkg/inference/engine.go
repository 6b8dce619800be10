// Package inference defines the capability contract for the text-generation
// backend. The coordinator consumes engines only through this interface;
// weight loading, GPU memory tuning and sampling live behind it.
package inference

import (
	"context"

	"github.com/go-go-golems/parley/pkg/conversation"
)

// StreamHandler receives one text chunk per call, in stream order. Returning
// an error aborts the stream.
type StreamHandler func(chunk string) error

// Engine is the inference capability. ChatStream must preserve the
// chronological order of messages and honor context cancellation mid-stream.
type Engine interface {
	// IsLoaded reports whether a model is resident and ready to generate.
	IsLoaded() bool

	// Model returns the descriptor of the currently loaded model, or nil.
	Model() *ModelDescriptor

	// ChatStream runs one streaming generation over the given messages,
	// invoking onChunk for every token and returning the full text. The
	// message list carries exactly one leading system instruction followed
	// by user/assistant turns in chronological order.
	ChatStream(ctx context.Context, messages []*conversation.Message, onChunk StreamHandler) (string, error)

	// CheckMemory reports the current memory-pressure reading. A critical
	// reading makes the coordinator refuse new generations.
	CheckMemory() MemoryStatus

	// Unload releases the loaded model. Conversation data is unaffected.
	Unload() error
}
