package generation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/contextwindow"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/inference"
)

// fakeEngine scripts the inference capability: it emits chunks, optionally
// fails mid-stream, or blocks until released.
type fakeEngine struct {
	chunks    []string
	failAfter int // emit this many chunks, then fail; -1 disables
	block     chan struct{}
	memory    inference.MemoryStatus

	mu       sync.Mutex
	received []*conversation.Message
}

func newFakeEngine(chunks ...string) *fakeEngine {
	return &fakeEngine{
		chunks:    chunks,
		failAfter: -1,
		memory:    inference.MemoryOK,
	}
}

func (f *fakeEngine) IsLoaded() bool {
	return true
}

func (f *fakeEngine) Model() *inference.ModelDescriptor {
	return &inference.ModelDescriptor{ID: "fake:latest", Name: "Fake", ContextTokens: 2048, Loaded: true}
}

func (f *fakeEngine) ChatStream(
	ctx context.Context,
	messages []*conversation.Message,
	onChunk inference.StreamHandler,
) (string, error) {
	f.mu.Lock()
	f.received = messages
	f.mu.Unlock()

	completion := ""
	for i, chunk := range f.chunks {
		if f.failAfter >= 0 && i >= f.failAfter {
			return completion, errors.New("backend exploded")
		}
		select {
		case <-ctx.Done():
			return completion, ctx.Err()
		default:
		}
		completion += chunk
		if err := onChunk(chunk); err != nil {
			return completion, err
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return completion, ctx.Err()
		}
	}

	return completion, nil
}

func (f *fakeEngine) CheckMemory() inference.MemoryStatus {
	return f.memory
}

func (f *fakeEngine) Unload() error {
	return nil
}

var _ inference.Engine = (*fakeEngine)(nil)

func setupConversation(t *testing.T, userText string) (*conversation.Store, *conversation.Conversation) {
	t.Helper()
	store := conversation.NewStore()
	conv := conversation.New("fake:latest")
	store.Add(conv)
	require.True(t, store.AppendMessage(conv.ID, conversation.NewMessage(conversation.RoleUser, userText)))
	return store, conv
}

func windowOf(conv *conversation.Conversation) contextwindow.Window {
	msgs := conv.Messages()
	return contextwindow.Window{Messages: msgs, Kept: len(msgs), Total: len(msgs)}
}

func TestGenerationAppendsAndFinalizesAssistantMessage(t *testing.T) {
	engine := newFakeEngine("Hello", ", ", "world")
	store, conv := setupConversation(t, "hi there friend")
	coordinator := NewCoordinator(engine, store)

	var streamed []string
	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), func(chunk string) error {
		streamed = append(streamed, chunk)
		return nil
	})
	require.NoError(t, err)

	msg, err := handle.Wait()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Hello, world", msg.Text)
	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	assert.Equal(t, []string{"Hello", ", ", "world"}, streamed)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[1].ID)
	assert.Equal(t, StateIdle, coordinator.State())

	stats := coordinator.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Tokens)
}

func TestFirstExchangeRenamesConversation(t *testing.T) {
	engine := newFakeEngine("sure")
	store, conv := setupConversation(t, "What is the capital of France please tell me")
	coordinator := NewCoordinator(engine, store)

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)

	assert.Equal(t, "What is the capital of France", conv.Title())
}

func TestLaterExchangesDoNotRename(t *testing.T) {
	engine := newFakeEngine("reply")
	store, conv := setupConversation(t, "first question")
	coordinator := NewCoordinator(engine, store)

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)
	titleAfterFirst := conv.Title()

	store.AppendMessage(conv.ID, conversation.NewMessage(conversation.RoleUser, "a completely different follow up"))
	handle, err = coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)

	assert.Equal(t, titleAfterFirst, conv.Title())
}

func TestSingleFlight(t *testing.T) {
	engine := newFakeEngine()
	engine.block = make(chan struct{})
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store)

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	assert.Equal(t, StateGenerating, coordinator.State())
	countDuring := conv.MessageCount()

	_, err = coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	assert.ErrorIs(t, err, ErrAlreadyGenerating)
	// no second pending assistant message was created
	assert.Equal(t, countDuring, conv.MessageCount())

	close(engine.block)
	_, err = handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, StateIdle, coordinator.State())
}

func TestMidStreamFailureRollsBackPendingMessage(t *testing.T) {
	engine := newFakeEngine("partial", " output")
	engine.failAfter = 1
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store)

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)

	msg, err := handle.Wait()
	assert.Nil(t, msg)
	require.Error(t, err)
	assert.True(t, IsGenerationFailed(err))

	// user message stays, pending assistant message is gone
	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, StateIdle, coordinator.State())
}

func TestCancelRollsBackAndReportsDistinctly(t *testing.T) {
	engine := newFakeEngine("some", " text")
	engine.block = make(chan struct{})
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store)

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)

	require.NoError(t, coordinator.CancelActive())
	msg, err := handle.Wait()
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, IsGenerationFailed(err))

	require.Len(t, conv.Messages(), 1)
	assert.Equal(t, StateIdle, coordinator.State())
}

func TestMemoryCriticalRefusesBeforeAnyMutation(t *testing.T) {
	engine := newFakeEngine("text")
	engine.memory = inference.MemoryCritical
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store)

	countBefore := conv.MessageCount()
	_, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	assert.ErrorIs(t, err, ErrMemoryPressure)
	assert.Equal(t, countBefore, conv.MessageCount())
	assert.Equal(t, StateIdle, coordinator.State())
}

func TestMaxTokensTruncatesWithoutError(t *testing.T) {
	engine := newFakeEngine("a", "b", "c", "d", "e")
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store, WithMaxTokens(3))

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)

	msg, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.Text)
	assert.Equal(t, 3, coordinator.LastStats().Tokens)
}

func TestFormattedHistoryHasOneLeadingSystemInstruction(t *testing.T) {
	engine := newFakeEngine("ok")
	store, conv := setupConversation(t, "question one")
	store.AppendMessage(conv.ID, conversation.NewMessage(conversation.RoleAssistant, "answer one"))
	store.AppendMessage(conv.ID, conversation.NewMessage(conversation.RoleUser, "question two"))
	coordinator := NewCoordinator(engine, store, WithSystemPrompt("Be terse."))

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)

	engine.mu.Lock()
	received := engine.received
	engine.mu.Unlock()

	require.Len(t, received, 4)
	assert.Equal(t, conversation.RoleSystem, received[0].Role)
	assert.Equal(t, "Be terse.", received[0].Text)
	for i, role := range []conversation.Role{conversation.RoleUser, conversation.RoleAssistant, conversation.RoleUser} {
		assert.Equal(t, role, received[i+1].Role)
	}
	for i := 2; i < len(received); i++ {
		assert.True(t, received[i].Time.After(received[i-1].Time))
	}
}

type collectingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *collectingSink) PublishEvent(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]events.EventType, 0, len(s.events))
	for _, e := range s.events {
		ret = append(ret, e.Type())
	}
	return ret
}

func TestEventLifecycle(t *testing.T) {
	engine := newFakeEngine("to", "ken")
	store, conv := setupConversation(t, "hi")
	sink := &collectingSink{}
	coordinator := NewCoordinator(engine, store, WithEventSinks(sink))

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.EventTypeStart,
		events.EventTypePartialCompletion,
		events.EventTypePartialCompletion,
		events.EventTypeFinal,
	}, sink.types())
}

func TestEventLifecycleOnFailure(t *testing.T) {
	engine := newFakeEngine("to", "ken")
	engine.failAfter = 1
	store, conv := setupConversation(t, "hi")
	sink := &collectingSink{}
	coordinator := NewCoordinator(engine, store, WithEventSinks(sink))

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	_, err = handle.Wait()
	require.Error(t, err)

	types := sink.types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.EventTypeError, types[len(types)-1])
}

func TestPendingMessageStreamsIncrementally(t *testing.T) {
	engine := newFakeEngine("one ", "two")
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store)

	seen := []string{}
	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), func(chunk string) error {
		// by the time a chunk is forwarded, the pending message already
		// carries the accumulated text
		if last := conv.LastMessage(); last != nil {
			seen = append(seen, last.Text)
		}
		return nil
	})
	require.NoError(t, err)

	msg, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"one ", "one two"}, seen)
	assert.Equal(t, msg.ID, handle.PendingID)
}

func TestTimestampsOrderUserBeforeAssistant(t *testing.T) {
	engine := newFakeEngine("ok")
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store)

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	_, err = handle.Wait()
	require.NoError(t, err)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Time.After(msgs[0].Time))
	assert.True(t, !conv.LastUpdated().Before(conv.Created))
}

func TestConcurrentDisplayReadsDuringStreaming(t *testing.T) {
	chunks := make([]string, 200)
	for i := range chunks {
		chunks[i] = "ab"
	}
	engine := newFakeEngine(chunks...)
	store, conv := setupConversation(t, "hi")
	coordinator := NewCoordinator(engine, store)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			// a display refresh while the assistant message streams
			for _, msg := range conv.Messages() {
				if msg.Role != conversation.RoleAssistant {
					continue
				}
				if len(msg.Text)%2 != 0 {
					t.Error("observed a partially written text")
					return
				}
			}
			if _, err := json.Marshal(conv); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	handle, err := coordinator.Start(context.Background(), conv, windowOf(conv), nil)
	require.NoError(t, err)
	msg, err := handle.Wait()
	require.NoError(t, err)

	close(stop)
	<-done

	assert.Equal(t, strings.Repeat("ab", 200), msg.Text)
	final, ok := conv.GetMessage(handle.PendingID)
	require.True(t, ok)
	assert.Equal(t, msg.Text, final.Text)
}
