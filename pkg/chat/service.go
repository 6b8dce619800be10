package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/contextwindow"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/generation"
	"github.com/go-go-golems/parley/pkg/inference"
)

// Service is the conversation facade: it owns the current-conversation
// reference and drives the store, the context window manager and the
// generation coordinator on behalf of callers. Construct exactly one per
// process and share it by reference.
type Service struct {
	engine      inference.Engine
	store       *conversation.Store
	coordinator *generation.Coordinator
	window      *contextwindow.Manager

	mu      sync.Mutex
	current *conversation.Conversation
}

type ServiceOption func(*Service)

// WithWindowManager substitutes the context window manager, for callers that
// configured a real tokenizer or a non-default chars-per-token ratio.
func WithWindowManager(m *contextwindow.Manager) ServiceOption {
	return func(s *Service) {
		s.window = m
	}
}

func NewService(
	engine inference.Engine,
	store *conversation.Store,
	coordinator *generation.Coordinator,
	options ...ServiceOption,
) *Service {
	ret := &Service{
		engine:      engine,
		store:       store,
		coordinator: coordinator,
		window:      contextwindow.NewManager(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// StartNewConversation creates a conversation against the loaded model, makes
// it current and persists it. An empty title falls back to the store default.
func (s *Service) StartNewConversation(title string) (*conversation.Conversation, error) {
	if !s.engine.IsLoaded() {
		return nil, ErrNoModelLoaded
	}

	model := s.engine.Model()
	options := []conversation.ConversationOption{}
	if title != "" {
		options = append(options, conversation.WithTitle(title))
	}
	conv := conversation.New(model.ID, options...)
	s.store.Add(conv)

	s.mu.Lock()
	s.current = conv
	s.mu.Unlock()

	log.Debug().
		Str("conversation_id", conv.ID.String()).
		Str("model", model.ID).
		Msg("started new conversation")
	return conv, nil
}

// LoadConversation makes conv the current conversation. It has no
// persistence side effect.
func (s *Service) LoadConversation(conv *conversation.Conversation) {
	s.mu.Lock()
	s.current = conv
	s.mu.Unlock()
}

// SendMessage appends text as a user message to the current conversation,
// selects the windowed history and hands it to the coordinator. It blocks
// until generation resolves and returns the finalized assistant message.
// Refusals (no conversation, empty input, memory pressure, a generation
// already in flight) happen before the user message is created.
func (s *Service) SendMessage(
	ctx context.Context,
	text string,
	onChunk inference.StreamHandler,
) (*conversation.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	conv := s.current
	s.mu.Unlock()
	if conv == nil {
		return nil, ErrNoConversation
	}

	if !s.engine.IsLoaded() {
		return nil, ErrNoModelLoaded
	}
	if s.coordinator.IsGenerating() {
		return nil, generation.ErrAlreadyGenerating
	}
	if s.engine.CheckMemory() == inference.MemoryCritical {
		return nil, generation.ErrMemoryPressure
	}

	userMsg := conversation.NewMessage(conversation.RoleUser, text)
	if !s.store.AppendMessage(conv.ID, userMsg) {
		return nil, ErrNoConversation
	}

	window := s.window.SelectWindow(conv.Messages(), s.contextBudget())
	handle, err := s.coordinator.Start(ctx, conv, window, onChunk)
	if err != nil {
		// the refusal raced past the pre-flight checks above; undo the
		// user append so the conversation is exactly as before the call
		s.store.RemoveMessage(conv.ID, userMsg.ID)
		return nil, err
	}

	return handle.Wait()
}

// DeleteConversation removes conv and its messages from the store and from
// persistence. If conv was current, the current reference is cleared.
func (s *Service) DeleteConversation(conv *conversation.Conversation) {
	s.store.Remove(conv.ID)

	s.mu.Lock()
	if s.current != nil && s.current.ID == conv.ID {
		s.current = nil
	}
	s.mu.Unlock()
}

// RenameConversation sets a new title, with the default title substituted for
// blank input.
func (s *Service) RenameConversation(conv *conversation.Conversation, title string) {
	s.store.Rename(conv.ID, title)
}

// UnloadModel releases the loaded model. Conversation data is unaffected.
func (s *Service) UnloadModel() error {
	return s.engine.Unload()
}

// CancelGeneration aborts the in-flight generation, if any.
func (s *Service) CancelGeneration() error {
	return s.coordinator.CancelActive()
}

func (s *Service) CurrentConversation() *conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// IsReady reports whether the inference backend has a loaded model.
func (s *Service) IsReady() bool {
	return s.engine.IsLoaded()
}

// CurrentModel returns the loaded model's descriptor, or nil.
func (s *Service) CurrentModel() *inference.ModelDescriptor {
	if !s.engine.IsLoaded() {
		return nil
	}
	return s.engine.Model()
}

func (s *Service) MemoryStatus() inference.MemoryStatus {
	return s.engine.CheckMemory()
}

func (s *Service) IsGenerating() bool {
	return s.coordinator.IsGenerating()
}

func (s *Service) LastStats() *generation.Stats {
	return s.coordinator.LastStats()
}

func (s *Service) ListConversations() []*conversation.Conversation {
	return s.store.List()
}

func (s *Service) GetConversation(id conversation.ConversationID) (*conversation.Conversation, bool) {
	return s.store.Get(id)
}

func (s *Service) contextBudget() int {
	if model := s.engine.Model(); model != nil && model.ContextTokens > 0 {
		return model.ContextTokens
	}
	return inference.DefaultContextTokens
}
