package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// staleGraceFactor extends a cache entry's life past its TTL for
// last-resort use when the upstream is unreachable.
const staleGraceFactor = 4

// ttlCache is a read-mostly cache for provider payloads. Writes are
// last-writer-wins; staleness tolerance already exists in the data
// model, so no finer coordination is needed.
type ttlCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value    T
	storedAt time.Time
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[T]),
	}
}

// get returns the cached value and whether it is still fresh. ok is
// false once the entry is past the stale grace window entirely.
func (c *ttlCache[T]) get(key string) (value T, fresh bool, ok bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()
	if !exists {
		return value, false, false
	}
	age := time.Since(e.storedAt)
	if age > c.ttl*staleGraceFactor {
		return value, false, false
	}
	return e.value, age <= c.ttl, true
}

func (c *ttlCache[T]) set(key string, value T) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: value, storedAt: time.Now()}
	c.mu.Unlock()
}

// coordKey rounds coordinates to ~1km so nearby queries share entries.
func coordKey(c domain.Coordinates) string {
	return fmt.Sprintf("%.2f,%.2f", c.Lat, c.Lon)
}
