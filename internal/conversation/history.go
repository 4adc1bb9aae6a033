// Package conversation holds the ordered user/agent turn history of a session.
package conversation

import (
	"sync"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "bot"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTurn builds a user turn stamped with the current time.
func UserTurn(text string) Turn {
	return Turn{Speaker: SpeakerUser, Text: text, Timestamp: time.Now()}
}

// AgentTurn builds an agent turn stamped with the current time.
func AgentTurn(text string) Turn {
	return Turn{Speaker: SpeakerAgent, Text: text, Timestamp: time.Now()}
}

// History is an append-only, ordered list of turns safe for concurrent use.
// Readers always get copies.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory creates a history seeded with initial turns.
func NewHistory(initial ...Turn) *History {
	h := &History{turns: make([]Turn, 0, len(initial)+8)}
	h.turns = append(h.turns, initial...)
	return h
}

// Append records a turn at the end of the history.
func (h *History) Append(t Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	h.turns = append(h.turns, t)
}

// Replace swaps the whole history, used when the host restores a saved session.
func (h *History) Replace(turns []Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = make([]Turn, len(turns), len(turns)+8)
	copy(h.turns, turns)
}

// Snapshot returns a copy of all turns.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Last returns the most recent turn, if any.
func (h *History) Last() (Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// Window returns the last n of turns, or all of them when n <= 0. The
// result shares turns' backing array.
func Window(turns []Turn, n int) []Turn {
	if n > 0 && len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}
