package conversation

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultTitle is used whenever a conversation would otherwise end up with an
// empty title.
const DefaultTitle = "New Conversation"

// Conversation holds an ordered message history. Messages are ordered by
// timestamp ascending; append keeps timestamps strictly increasing per
// conversation so that ordering stays stable even when the wall clock does
// not advance between appends.
//
// A conversation carries its own lock: readers may call Messages, LastMessage
// or MarshalJSON while a generation is still streaming text into the pending
// assistant message. Readers always observe whole message texts, never a
// partially written string.
type Conversation struct {
	ID      ConversationID
	ModelID string
	Created time.Time

	mu          sync.RWMutex
	title       string
	lastUpdated time.Time
	messages    []*Message
}

type ConversationOption func(*Conversation)

func WithConversationID(id ConversationID) ConversationOption {
	return func(c *Conversation) {
		c.ID = id
	}
}

func WithTitle(title string) ConversationOption {
	return func(c *Conversation) {
		c.title = title
	}
}

func WithCreated(t time.Time) ConversationOption {
	return func(c *Conversation) {
		c.Created = t
		c.lastUpdated = t
	}
}

func WithMessages(messages ...*Message) ConversationOption {
	return func(c *Conversation) {
		for _, m := range messages {
			c.append(m)
		}
	}
}

func New(modelID string, options ...ConversationOption) *Conversation {
	now := time.Now()
	ret := &Conversation{
		ID:          NewConversationID(),
		ModelID:     modelID,
		Created:     now,
		title:       DefaultTitle,
		lastUpdated: now,
	}

	for _, option := range options {
		option(ret)
	}

	if ret.title == "" {
		ret.title = DefaultTitle
	}

	return ret
}

func (c *Conversation) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.title
}

func (c *Conversation) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// Messages returns the history ordered by timestamp ascending. The returned
// messages are copies, so callers can read them without holding any lock
// while a generation keeps updating the stored pending message.
func (c *Conversation) Messages() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ret := make([]*Message, len(c.messages))
	for i, m := range c.messages {
		clone := *m
		ret[i] = &clone
	}
	return ret
}

func (c *Conversation) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// LastMessage returns a copy of the message with the highest timestamp, or
// nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	last := c.lastMessageLocked()
	if last == nil {
		return nil
	}
	clone := *last
	return &clone
}

func (c *Conversation) GetMessage(id MessageID) (*Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.messages {
		if m.ID == id {
			clone := *m
			return &clone, true
		}
	}
	return nil, false
}

// append adds a message, bumping its timestamp by a nanosecond if it does not
// strictly follow the current last message.
func (c *Conversation) append(m *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.ConversationID = c.ID
	if last := c.lastMessageLocked(); last != nil && !m.Time.After(last.Time) {
		m.Time = last.Time.Add(time.Nanosecond)
	}
	c.messages = append(c.messages, m)
	c.touchLocked()
}

func (c *Conversation) remove(id MessageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			c.touchLocked()
			return true
		}
	}
	return false
}

// updateMessageText replaces a message's text in a single locked step.
// Streaming generations call this once per chunk so that concurrent readers
// only ever see whole strings.
func (c *Conversation) updateMessageText(id MessageID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.ID == id {
			m.Text = text
			return true
		}
	}
	return false
}

func (c *Conversation) rename(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
	c.touchLocked()
}

func (c *Conversation) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()
}

func (c *Conversation) lastMessageLocked() *Message {
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

func (c *Conversation) touchLocked() {
	now := time.Now()
	if now.Before(c.Created) {
		now = c.Created
	}
	c.lastUpdated = now
}

type conversationJSON struct {
	ID          ConversationID `json:"id"`
	Title       string         `json:"title"`
	ModelID     string         `json:"modelID"`
	Created     time.Time      `json:"created"`
	LastUpdated time.Time      `json:"lastUpdated"`
	Messages    []*Message     `json:"messages"`
}

func (c *Conversation) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(conversationJSON{
		ID:          c.ID,
		Title:       c.title,
		ModelID:     c.ModelID,
		Created:     c.Created,
		LastUpdated: c.lastUpdated,
		Messages:    c.messages,
	})
}

func (c *Conversation) UnmarshalJSON(b []byte) error {
	var cj conversationJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return err
	}
	c.ID = cj.ID
	c.ModelID = cj.ModelID
	c.Created = cj.Created
	c.title = cj.Title
	c.lastUpdated = cj.LastUpdated
	c.messages = cj.Messages
	if c.title == "" {
		c.title = DefaultTitle
	}
	if c.lastUpdated.Before(c.Created) {
		c.lastUpdated = c.Created
	}
	return nil
}
