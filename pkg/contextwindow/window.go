// Package contextwindow selects the subset of a conversation's history that
// fits a model's context budget. The budget is expressed in tokens; by
// default message cost is approximated as character count against a
// characters-per-token estimate, and a real tokenizer can be substituted
// without changing the contract (budget in, chronological suffix out).
package contextwindow

import (
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/conversation"
)

// DefaultCharsPerToken is the rough heuristic used when no tokenizer is
// configured.
const DefaultCharsPerToken = 3

// Window is the selected chronological suffix plus the advisory trim
// observation (kept vs total). Trimming is diagnostics only, never an error.
type Window struct {
	Messages []*conversation.Message
	Kept     int
	Total    int
}

func (w Window) Trimmed() bool {
	return w.Kept < w.Total
}

type Manager struct {
	charsPerToken int
	counter       TokenCounter
}

type ManagerOption func(*Manager)

func WithCharsPerToken(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.charsPerToken = n
		}
	}
}

// WithTokenCounter replaces the character heuristic with a real tokenizer.
func WithTokenCounter(counter TokenCounter) ManagerOption {
	return func(m *Manager) {
		m.counter = counter
	}
}

func NewManager(options ...ManagerOption) *Manager {
	ret := &Manager{
		charsPerToken: DefaultCharsPerToken,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// SelectWindow returns the maximal suffix of messages whose cumulative cost
// stays within budgetTokens, re-ordered oldest-first. It walks from most
// recent to oldest and stops before the first message that would push the
// running total over budget. For a non-empty history the window is never
// empty: the most recent message is always retained, even when it alone
// exceeds the budget. The input slice is not mutated.
func (m *Manager) SelectWindow(messages []*conversation.Message, budgetTokens int) Window {
	total := len(messages)
	if total == 0 {
		return Window{}
	}

	budget := budgetTokens
	if m.counter == nil {
		budget = budgetTokens * m.charsPerToken
	}

	used := 0
	kept := 0
	for i := total - 1; i >= 0; i-- {
		cost := m.cost(messages[i].Text)
		if kept > 0 && used+cost > budget {
			break
		}
		used += cost
		kept++
	}

	ret := Window{
		Messages: append([]*conversation.Message{}, messages[total-kept:]...),
		Kept:     kept,
		Total:    total,
	}

	if ret.Trimmed() {
		log.Debug().
			Int("kept", ret.Kept).
			Int("total", ret.Total).
			Int("budget_tokens", budgetTokens).
			Msg("context window trimmed")
	}

	return ret
}

func (m *Manager) cost(text string) int {
	if m.counter != nil {
		return m.counter.CountTokens(text)
	}
	return len(text)
}
