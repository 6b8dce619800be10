// Package generation owns the single-flight generation state machine: it
// appends the pending assistant message, drives the inference engine's token
// stream into it, and commits or rolls back the conversation on completion.
package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/contextwindow"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/inference"
	"github.com/go-go-golems/parley/pkg/title"
)

type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
)

// DefaultSystemPrompt leads every formatted history handed to the engine.
const DefaultSystemPrompt = "You are a helpful assistant."

// errTruncated stops the stream once the configured maximum token count is
// reached. Truncation is not an error for the caller.
var errTruncated = errors.New("maximum token count reached")

type Coordinator struct {
	engine       inference.Engine
	store        *conversation.Store
	sinks        []events.EventSink
	systemPrompt string
	maxTokens    int

	mu        sync.Mutex
	active    *Handle
	lastStats *Stats
}

type CoordinatorOption func(*Coordinator)

func WithEventSinks(sinks ...events.EventSink) CoordinatorOption {
	return func(c *Coordinator) {
		c.sinks = append(c.sinks, sinks...)
	}
}

func WithSystemPrompt(prompt string) CoordinatorOption {
	return func(c *Coordinator) {
		if prompt != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithMaxTokens truncates generations after n streamed chunks. Zero means no
// limit.
func WithMaxTokens(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.maxTokens = n
	}
}

func NewCoordinator(engine inference.Engine, store *conversation.Store, options ...CoordinatorOption) *Coordinator {
	ret := &Coordinator{
		engine:       engine,
		store:        store,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.IsRunning() {
		return StateGenerating
	}
	return StateIdle
}

func (c *Coordinator) IsGenerating() bool {
	return c.State() == StateGenerating
}

// LastStats returns the statistics of the most recently completed
// generation, or nil if none has completed yet.
func (c *Coordinator) LastStats() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStats
}

// CancelActive aborts the current generation, if any.
func (c *Coordinator) CancelActive() error {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()
	if h == nil || !h.IsRunning() {
		return errors.New("no generation in flight")
	}
	h.Cancel()
	return nil
}

// Start begins one generation over the windowed history and returns a Handle
// for it.
//
// Guard order matters: the memory pre-flight runs before any state mutation,
// and the single-flight check runs before the pending assistant message is
// appended, so a refused request leaves the conversation untouched. The
// pending message is persisted immediately; a client restart mid-generation
// still sees an entry, albeit possibly incomplete.
func (c *Coordinator) Start(
	ctx context.Context,
	conv *conversation.Conversation,
	window contextwindow.Window,
	onChunk inference.StreamHandler,
) (*Handle, error) {
	if status := c.engine.CheckMemory(); status == inference.MemoryCritical {
		log.Warn().Str("conversation_id", conv.ID.String()).Msg("memory critical, refusing generation")
		return nil, ErrMemoryPressure
	}

	c.mu.Lock()
	if c.active != nil && c.active.IsRunning() {
		c.mu.Unlock()
		return nil, ErrAlreadyGenerating
	}

	pending := conversation.NewMessage(conversation.RoleAssistant, "")
	runCtx, cancel := context.WithCancel(ctx)
	handle := newHandle(conv.ID, pending.ID, cancel)
	c.active = handle
	c.mu.Unlock()

	if !c.store.AppendMessage(conv.ID, pending) {
		cancel()
		err := errors.New("conversation not found")
		handle.setResult(nil, err)
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		return nil, err
	}

	metadata := events.EventMetadata{
		ID:             uuid.New(),
		ConversationID: conv.ID.String(),
		MessageID:      pending.ID.String(),
		Model:          conv.ModelID,
	}

	go c.run(runCtx, conv, window, pending, metadata, onChunk, handle)

	return handle, nil
}

func (c *Coordinator) run(
	ctx context.Context,
	conv *conversation.Conversation,
	window contextwindow.Window,
	pending *conversation.Message,
	metadata events.EventMetadata,
	onChunk inference.StreamHandler,
	handle *Handle,
) {
	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}()

	c.publish(events.NewStartEvent(metadata))

	start := time.Now()
	completion := ""
	tokens := 0

	_, err := c.engine.ChatStream(ctx, c.formatHistory(window), func(chunk string) error {
		tokens++
		completion += chunk
		// locked whole-string swap so live display reads stay race-free
		c.store.UpdateMessageText(conv.ID, pending.ID, completion)

		c.publish(events.NewPartialCompletionEvent(metadata, chunk, completion))

		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return err
			}
		}
		if c.maxTokens > 0 && tokens >= c.maxTokens {
			return errTruncated
		}
		return nil
	})

	if errors.Is(err, errTruncated) {
		log.Debug().
			Str("conversation_id", conv.ID.String()).
			Int("max_tokens", c.maxTokens).
			Msg("generation truncated at token limit")
		err = nil
	}

	if ctx.Err() != nil {
		c.rollback(conv, pending)
		c.publish(events.NewInterruptEvent(metadata, completion))
		handle.setResult(nil, ErrCancelled)
		return
	}
	if err != nil {
		c.rollback(conv, pending)
		c.publish(events.NewErrorEvent(metadata, err))
		handle.setResult(nil, &GenerationError{Reason: "inference backend failed", Err: err})
		return
	}

	c.finalize(conv, pending, completion, tokens, time.Since(start), metadata, handle)
}

func (c *Coordinator) finalize(
	conv *conversation.Conversation,
	pending *conversation.Message,
	completion string,
	tokens int,
	elapsed time.Duration,
	metadata events.EventMetadata,
	handle *Handle,
) {
	c.store.UpdateMessageText(conv.ID, pending.ID, completion)
	c.store.Touch(conv.ID)

	// first completed exchange: derive the title from the user's message
	if conv.MessageCount() == 2 {
		if first := conv.Messages()[0]; first.Role == conversation.RoleUser {
			c.store.Rename(conv.ID, title.Generate(first.Text))
		}
	}

	stats := newStats(tokens, elapsed)
	c.mu.Lock()
	c.lastStats = stats
	c.mu.Unlock()

	metadata.OutputTokens = tokens
	metadata.DurationMs = elapsed.Milliseconds()
	c.publish(events.NewFinalEvent(metadata, completion))

	log.Debug().
		Str("conversation_id", conv.ID.String()).
		Object("stats", stats).
		Msg("generation complete")

	final, ok := conv.GetMessage(pending.ID)
	if !ok {
		final = pending
	}
	handle.setResult(final, nil)
}

// rollback removes the half-written pending message; the user message that
// triggered the turn stays.
func (c *Coordinator) rollback(conv *conversation.Conversation, pending *conversation.Message) {
	c.store.RemoveMessage(conv.ID, pending.ID)
}

// formatHistory prepends exactly one system instruction and keeps the
// windowed messages in chronological order, dropping any stray system
// entries from history.
func (c *Coordinator) formatHistory(window contextwindow.Window) []*conversation.Message {
	ret := make([]*conversation.Message, 0, len(window.Messages)+1)
	ret = append(ret, conversation.NewMessage(conversation.RoleSystem, c.systemPrompt))
	for _, msg := range window.Messages {
		if msg.Role == conversation.RoleSystem {
			continue
		}
		ret = append(ret, msg)
	}
	return ret
}

func (c *Coordinator) publish(event events.Event) {
	for _, sink := range c.sinks {
		// best-effort: a broken sink must not disturb the stream
		_ = sink.PublishEvent(event)
	}
}
