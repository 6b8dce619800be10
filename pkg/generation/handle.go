package generation

import (
	"context"
	"errors"
	"sync"

	"github.com/go-go-golems/parley/pkg/conversation"
)

var ErrHandleNil = errors.New("execution handle is nil")

// Handle represents one in-flight generation. It is cancelable and waitable;
// the underlying inference is always driven by context cancellation.
type Handle struct {
	ConversationID conversation.ConversationID
	PendingID      conversation.MessageID

	done chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	message *conversation.Message
	err     error
}

func newHandle(conversationID conversation.ConversationID, pendingID conversation.MessageID, cancel context.CancelFunc) *Handle {
	return &Handle{
		ConversationID: conversationID,
		PendingID:      pendingID,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

func (h *Handle) setResult(message *conversation.Message, err error) {
	h.mu.Lock()
	h.message = message
	h.err = err
	h.cancel = nil
	close(h.done)
	h.mu.Unlock()
}

// Cancel aborts the in-flight generation. Safe to call multiple times.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the generation resolves and returns the finalized
// assistant message or the failure.
func (h *Handle) Wait() (*conversation.Message, error) {
	if h == nil {
		return nil, ErrHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.message, h.err
}

// IsRunning reports whether the generation appears to still be running.
func (h *Handle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
