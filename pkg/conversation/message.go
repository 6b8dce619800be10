package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

type ConversationID uuid.UUID

func NewConversationID() ConversationID {
	return ConversationID(uuid.New())
}

func ParseConversationID(s string) (ConversationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NullConversationID, err
	}
	return ConversationID(u), nil
}

func (id ConversationID) String() string {
	return uuid.UUID(id).String()
}

func (id ConversationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ConversationID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ConversationID(u)
	return nil
}

var NullConversationID = ConversationID(uuid.Nil)

type MessageID uuid.UUID

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func (id MessageID) String() string {
	return uuid.UUID(id).String()
}

func (id MessageID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *MessageID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = MessageID(u)
	return nil
}

// Message is a single entry in a conversation. ID, Role and Time are fixed at
// creation; Text is only rewritten while the message is the pending assistant
// message of an in-flight generation.
//
// ConversationID is a weak back-reference: the owning conversation controls
// the message's lifetime, the id is only good for lookups.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversationID"`
	Role           Role           `json:"role"`
	Text           string         `json:"text"`
	Time           time.Time      `json:"time"`
}

type MessageOption func(*Message)

func WithID(id MessageID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func WithTime(time time.Time) MessageOption {
	return func(message *Message) {
		message.Time = time
	}
}

func NewMessage(role Role, text string, options ...MessageOption) *Message {
	ret := &Message{
		ID:   NewMessageID(),
		Role: role,
		Text: text,
		Time: time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (m *Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Text, "\n"))
}
