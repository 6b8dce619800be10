package conversation

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store holds the authoritative set of conversations for a session.
//
// Persistence is delegated to an injected Persister and is strictly
// best-effort: the in-memory state stays the source of truth, a failed write
// is logged and otherwise ignored so that it can never stall or fail the
// generation streaming path.
type Store struct {
	mu            sync.RWMutex
	conversations map[ConversationID]*Conversation
	persister     Persister
}

type StoreOption func(*Store)

func WithPersister(p Persister) StoreOption {
	return func(s *Store) {
		s.persister = p
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		conversations: map[ConversationID]*Conversation{},
		persister:     &NullPersister{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *Store) Add(c *Conversation) {
	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()

	if err := s.persister.Insert(c); err != nil {
		log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("failed to persist new conversation")
	}
}

func (s *Store) Get(id ConversationID) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// List returns the conversations sorted by last update, most recent first.
func (s *Store) List() []*Conversation {
	s.mu.RLock()
	ret := make([]*Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		ret = append(ret, c)
	}
	s.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].LastUpdated().After(ret[j].LastUpdated())
	})
	return ret
}

// Remove deletes the conversation and cascades to its messages, both
// in-memory and in persistence.
func (s *Store) Remove(id ConversationID) {
	s.mu.Lock()
	c, ok := s.conversations[id]
	if ok {
		delete(s.conversations, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.persister.Delete(c); err != nil {
		log.Warn().Err(err).Str("conversation_id", id.String()).Msg("failed to delete persisted conversation")
	}
}

// AppendMessage attaches msg to the conversation, assigning the weak
// back-reference and keeping per-conversation timestamps strictly increasing.
func (s *Store) AppendMessage(id ConversationID, msg *Message) bool {
	s.mu.Lock()
	c, ok := s.conversations[id]
	if ok {
		c.append(msg)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.save(c)
	return true
}

// UpdateMessageText replaces the message's text as a single whole-string
// swap, so concurrent readers never observe a half-written update. It is
// called once per streamed chunk and deliberately does not persist: the
// finalize path saves the conversation once the text stops changing.
func (s *Store) UpdateMessageText(id ConversationID, msgID MessageID, text string) bool {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()

	if !ok {
		return false
	}
	return c.updateMessageText(msgID, text)
}

// RemoveMessage drops a message from the conversation, used to roll back the
// pending assistant message on generation failure.
func (s *Store) RemoveMessage(id ConversationID, msgID MessageID) bool {
	s.mu.Lock()
	c, ok := s.conversations[id]
	removed := false
	if ok {
		removed = c.remove(msgID)
	}
	s.mu.Unlock()

	if removed {
		s.save(c)
	}
	return removed
}

func (s *Store) Rename(id ConversationID, title string) {
	if title == "" {
		title = DefaultTitle
	}

	s.mu.Lock()
	c, ok := s.conversations[id]
	if ok {
		c.rename(title)
	}
	s.mu.Unlock()

	if ok {
		s.save(c)
	}
}

// Touch refreshes the conversation's last-updated timestamp.
func (s *Store) Touch(id ConversationID) {
	s.mu.Lock()
	c, ok := s.conversations[id]
	if ok {
		c.touch()
	}
	s.mu.Unlock()

	if ok {
		s.save(c)
	}
}

func (s *Store) save(c *Conversation) {
	if err := s.persister.Save(c); err != nil {
		log.Warn().Err(err).Str("conversation_id", c.ID.String()).Msg("failed to persist conversation")
	}
}
