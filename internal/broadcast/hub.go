// Package broadcast pushes orchestration lifecycle events to dashboard
// subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
	"github.com/himanshu-nimonkar/TerraMind/internal/metrics"
)

// subscriberBuffer bounds each subscriber's event queue. A subscriber
// that cannot keep up misses events rather than stalling publishers;
// the dashboard re-derives state from the next response.
const subscriberBuffer = 16

// Hub fans orchestration events out to all subscribers. Delivery is
// at-most-once per subscriber per event, with no replay buffer.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan domain.Event]struct{}
}

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan domain.Event]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel
// plus a cancel function that must be called on disconnect.
func (h *Hub) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	metrics.DashboardSubscribers.Set(float64(n))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			n := len(h.subs)
			h.mu.Unlock()
			metrics.DashboardSubscribers.Set(float64(n))
		})
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber without
// blocking. Full subscriber queues drop the event.
func (h *Hub) Publish(event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			slog.Debug("Dropping event for slow dashboard subscriber", "type", event.Type)
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
