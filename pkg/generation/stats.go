package generation

import (
	"time"

	"github.com/rs/zerolog"
)

// Stats describes one completed generation. They live on the coordinator,
// not the conversation, and are overwritten by the next run.
type Stats struct {
	Tokens          int           `json:"tokens"`
	Duration        time.Duration `json:"duration"`
	TokensPerSecond float64       `json:"tokens_per_second"`
}

func newStats(tokens int, duration time.Duration) *Stats {
	ret := &Stats{
		Tokens:   tokens,
		Duration: duration,
	}
	if duration > 0 {
		ret.TokensPerSecond = float64(tokens) / duration.Seconds()
	}
	return ret
}

func (s *Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Int("tokens", s.Tokens).
		Dur("duration", s.Duration).
		Float64("tokens_per_second", s.TokensPerSecond)
}
