package domain

import (
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the caller.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the synthesis step.
	RoleAssistant Role = "assistant"
)

// Turn is one message in a session's conversation history. Append-only.
type Turn struct {
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Citations []SourceRef `json:"citations,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// maxHistoryTurns bounds conversation memory per session.
const maxHistoryTurns = 30

// Session holds conversational state across queries from the same caller.
// It is the only entity whose lifetime exceeds one request.
type Session struct {
	ID           string       `json:"session_id"`
	Crop         string       `json:"crop,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	History      []Turn       `json:"history"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActiveAt time.Time    `json:"last_active_at"`
}

// AppendTurn adds a turn to the history, trimming to the retention bound.
func (s *Session) AppendTurn(t Turn) {
	s.History = append(s.History, t)
	if len(s.History) > maxHistoryTurns {
		s.History = s.History[len(s.History)-maxHistoryTurns:]
	}
	s.LastActiveAt = t.Timestamp
}

// RecentTurns returns the last n turns of history.
func (s *Session) RecentTurns(n int) []Turn {
	if n >= len(s.History) {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
