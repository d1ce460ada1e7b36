package domain

import (
	"time"
)

// EventType labels a dashboard event.
type EventType string

const (
	// EventConnected confirms a new dashboard subscription.
	EventConnected EventType = "connected"
	// EventThinking signals orchestration has started for a query.
	EventThinking EventType = "thinking"
	// EventWeather carries a fresh weather snapshot.
	EventWeather EventType = "weather"
	// EventSatellite carries a fresh vegetation snapshot.
	EventSatellite EventType = "satellite"
	// EventDegraded signals a provider fetch was degraded or failed.
	EventDegraded EventType = "degraded"
	// EventResponse carries the completed response.
	EventResponse EventType = "response"
)

// Event is pushed to every subscribed dashboard connection. Delivery is
// at-most-once per subscriber; there is no replay buffer.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload, Timestamp: time.Now().UTC()}
}
