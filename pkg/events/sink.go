package events

// EventSink represents a destination for generation events. The
// PublisherManager is the watermill-backed implementation; tests provide
// in-memory collectors.
type EventSink interface {
	PublishEvent(event Event) error
}
