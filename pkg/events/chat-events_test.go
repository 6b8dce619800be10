package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	meta := EventMetadata{
		ID:             uuid.New(),
		ConversationID: uuid.NewString(),
		Model:          "llama3:8b",
	}

	tests := []struct {
		name  string
		event Event
		check func(t *testing.T, decoded Event)
	}{
		{
			name:  "partial",
			event: NewPartialCompletionEvent(meta, "wor", "hello wor"),
			check: func(t *testing.T, decoded Event) {
				partial, ok := decoded.(*EventPartialCompletion)
				require.True(t, ok)
				assert.Equal(t, "wor", partial.Delta)
				assert.Equal(t, "hello wor", partial.Completion)
			},
		},
		{
			name:  "final",
			event: NewFinalEvent(meta, "hello world"),
			check: func(t *testing.T, decoded Event) {
				final, ok := decoded.(*EventFinal)
				require.True(t, ok)
				assert.Equal(t, "hello world", final.Text)
			},
		},
		{
			name:  "error",
			event: NewErrorEvent(meta, errors.New("backend exploded")),
			check: func(t *testing.T, decoded Event) {
				evErr, ok := decoded.(*EventError)
				require.True(t, ok)
				assert.Equal(t, "backend exploded", evErr.ErrorString)
			},
		},
		{
			name:  "interrupt",
			event: NewInterruptEvent(meta, "hello wo"),
			check: func(t *testing.T, decoded Event) {
				interrupt, ok := decoded.(*EventInterrupt)
				require.True(t, ok)
				assert.Equal(t, "hello wo", interrupt.Text)
			},
		},
		{
			name:  "start",
			event: NewStartEvent(meta),
			check: func(t *testing.T, decoded Event) {
				_, ok := decoded.(*EventStart)
				require.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.event)
			require.NoError(t, err)

			decoded, err := NewEventFromJson(b)
			require.NoError(t, err)
			assert.Equal(t, tt.event.Type(), decoded.Type())
			assert.Equal(t, meta.ID, decoded.Metadata().ID)
			tt.check(t, decoded)
		})
	}
}
