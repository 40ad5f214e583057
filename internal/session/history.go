// Package session keeps the per-conversation turn history the prompt
// composer windows over.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Roles used in turn records.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one utterance in the conversation.
type Turn struct {
	ID   string
	Role string
	Text string
	At   time.Time
}

// History is an append-only turn log. Safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append records a turn and returns it with a fresh id and timestamp.
func (h *History) Append(role, text string) Turn {
	turn := Turn{
		ID:   uuid.NewString(),
		Role: role,
		Text: text,
		At:   time.Now(),
	}
	h.mu.Lock()
	h.turns = append(h.turns, turn)
	h.mu.Unlock()
	return turn
}

// Window returns a copy of the trailing n turns (all turns when n exceeds
// the history length, empty slice when n <= 0).
func (h *History) Window(n int) []Turn {
	if n <= 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	start := len(h.turns) - n
	if start < 0 {
		start = 0
	}
	return append([]Turn(nil), h.turns[start:]...)
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
