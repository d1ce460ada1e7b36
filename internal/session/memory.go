package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// MemoryStore implements Store with a process-lifetime map. It backs
// tests and deployments that run without a database path.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemory creates an in-memory session store.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

// GetOrCreate retrieves the session, creating an empty one if absent.
func (m *MemoryStore) GetOrCreate(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		return cloneSession(sess), nil
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		ID:           sessionID,
		History:      []domain.Turn{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	m.sessions[sessionID] = sess
	return cloneSession(sess), nil
}

// AppendTurn appends a completed turn to the session's history.
func (m *MemoryStore) AppendTurn(_ context.Context, sessionID string, turn domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		now := time.Now().UTC()
		sess = &domain.Session{ID: sessionID, CreatedAt: now, LastActiveAt: now}
		m.sessions[sessionID] = sess
	}
	sess.AppendTurn(turn)
	return nil
}

// UpdateContext persists sticky crop and coordinate context.
func (m *MemoryStore) UpdateContext(_ context.Context, sessionID string, crop string, coords *domain.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		now := time.Now().UTC()
		sess = &domain.Session{ID: sessionID, CreatedAt: now, LastActiveAt: now}
		m.sessions[sessionID] = sess
	}
	if crop != "" {
		sess.Crop = crop
	}
	if coords != nil {
		c := *coords
		sess.Coordinates = &c
	}
	sess.LastActiveAt = time.Now().UTC()
	return nil
}

// Reset discards the session and returns a fresh session ID.
func (m *MemoryStore) Reset(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	newID := uuid.New().String()
	now := time.Now().UTC()
	m.sessions[newID] = &domain.Session{
		ID:           newID,
		History:      []domain.Turn{},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	return newID, nil
}

// DeleteExpired removes sessions idle longer than ttl.
func (m *MemoryStore) DeleteExpired(_ context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, sess := range m.sessions {
		if sess.LastActiveAt.Before(cutoff) {
			delete(m.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close releases nothing for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

func cloneSession(s *domain.Session) *domain.Session {
	out := *s
	out.History = append([]domain.Turn(nil), s.History...)
	if s.Coordinates != nil {
		c := *s.Coordinates
		out.Coordinates = &c
	}
	return &out
}
