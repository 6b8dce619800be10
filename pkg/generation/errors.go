package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyGenerating is returned when a generation is requested while
	// one is already in flight. No queuing, no cancellation of the prior
	// request is implied.
	ErrAlreadyGenerating = errors.New("generation already in progress")

	// ErrMemoryPressure is returned when the pre-flight memory check reports
	// critical, before any message is created or any inference call is made.
	ErrMemoryPressure = errors.New("memory pressure critical, generation refused")

	// ErrCancelled reports a caller-initiated abort. It takes the same
	// rollback path as a backend failure but is reported distinctly so
	// callers can tell user-initiated stop from backend error.
	ErrCancelled = errors.New("generation cancelled")
)

// GenerationError wraps a backend failure that occurred at any point in the
// stream. The pending assistant message has been rolled back by the time the
// caller sees it.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func IsGenerationFailed(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
