package session

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the number of mutexes in a Locker. Collisions between
// unrelated sessions only cost serialization, never correctness.
const lockStripes = 64

// Locker serializes orchestration per session ID with a lock-striped
// set of mutexes, so queries for unrelated sessions proceed in parallel
// without a global lock.
type Locker struct {
	stripes [lockStripes]sync.Mutex
}

// NewLocker creates a session locker.
func NewLocker() *Locker {
	return &Locker{}
}

func (l *Locker) stripe(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &l.stripes[h.Sum32()%lockStripes]
}

// Lock blocks until the session's stripe is available. A second query
// for the same session does not begin orchestration until the first has
// appended its turn and unlocked.
func (l *Locker) Lock(sessionID string) {
	l.stripe(sessionID).Lock()
}

// TryLock acquires the session's stripe without blocking, reporting
// whether it succeeded.
func (l *Locker) TryLock(sessionID string) bool {
	return l.stripe(sessionID).TryLock()
}

// Unlock releases the session's stripe.
func (l *Locker) Unlock(sessionID string) {
	l.stripe(sessionID).Unlock()
}
