package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRouterDeliversTypedEvents(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() {
		_ = router.Close()
	}()

	received := make(chan Event, 4)
	router.AddHandler("collect", "chat", func(e Event) error {
		received <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	manager := NewPublisherManager()
	manager.SubscribePublisher("chat", router.Publisher)

	metadata := EventMetadata{ID: uuid.New(), ConversationID: uuid.NewString()}
	require.NoError(t, manager.PublishEvent(NewStartEvent(metadata)))
	require.NoError(t, manager.PublishEvent(NewPartialCompletionEvent(metadata, "hel", "hel")))

	waitEvent := func() Event {
		select {
		case e := <-received:
			return e
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
			return nil
		}
	}

	first := waitEvent()
	assert.Equal(t, EventTypeStart, first.Type())
	assert.Equal(t, metadata.ConversationID, first.Metadata().ConversationID)

	second := waitEvent()
	require.Equal(t, EventTypePartialCompletion, second.Type())
	partial, ok := ToTypedEvent[EventPartialCompletion](second)
	require.True(t, ok)
	assert.Equal(t, "hel", partial.Delta)
	assert.Equal(t, "hel", partial.Completion)
}
