package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublisherManagerStampsSequenceNumbers(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, "chat")
	require.NoError(t, err)

	manager := NewPublisherManager()
	manager.SubscribePublisher("chat", pubSub)

	metadata := EventMetadata{ID: uuid.New(), ConversationID: uuid.NewString()}
	require.NoError(t, manager.PublishEvent(NewStartEvent(metadata)))
	require.NoError(t, manager.PublishEvent(NewFinalEvent(metadata, "done")))

	first := receive(t, messages)
	assert.Equal(t, "0", first.Metadata.Get("sequence_number"))
	event, err := NewEventFromJson(first.Payload)
	require.NoError(t, err)
	assert.Equal(t, EventTypeStart, event.Type())
	assert.Equal(t, metadata.ConversationID, event.Metadata().ConversationID)

	second := receive(t, messages)
	assert.Equal(t, "1", second.Metadata.Get("sequence_number"))
	event, err = NewEventFromJson(second.Payload)
	require.NoError(t, err)
	assert.Equal(t, EventTypeFinal, event.Type())
}
