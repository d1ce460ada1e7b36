// Package session provides conversational session state and persistence.
package session

import (
	"context"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// Store defines the interface for persisting session state.
//
// Callers that mutate a session must hold its Locker entry for the
// duration of the read-modify-write; the store itself only serializes
// individual statements.
type Store interface {
	// GetOrCreate retrieves the session, creating an empty one if absent.
	GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error)

	// AppendTurn appends a completed turn to the session's history.
	AppendTurn(ctx context.Context, sessionID string, turn domain.Turn) error

	// UpdateContext persists sticky context (crop, coordinates) resolved
	// during orchestration. Empty crop and nil coords leave the stored
	// values untouched.
	UpdateContext(ctx context.Context, sessionID string, crop string, coords *domain.Coordinates) error

	// Reset discards the session and returns a fresh session ID.
	// Resetting an already-cleared session is not an error.
	Reset(ctx context.Context, sessionID string) (string, error)

	// DeleteExpired removes sessions idle longer than ttl.
	DeleteExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
