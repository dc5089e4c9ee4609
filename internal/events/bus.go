// Package events provides the in-process event bus used for collection
// progress and job lifecycle notifications. The SSE stream handler and any
// other listeners subscribe; emitters never block on slow subscribers.
package events

import (
	"sync"
	"time"
)

// EventType identifies a category of event.
type EventType string

const (
	CollectionStarted  EventType = "collection_started"
	CollectionProgress EventType = "collection_progress"
	CollectionFinished EventType = "collection_finished"
	UniverseRefreshed  EventType = "universe_refreshed"
	GateChanged        EventType = "gate_changed"
	ScoresCalculated   EventType = "scores_calculated"
)

// Event is one emitted event with its payload.
type Event struct {
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ProgressData is the payload of CollectionProgress events. Current and
// Total count completed symbols, LastSymbol is the symbol that just
// finished.
type ProgressData struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	LastSymbol string `json:"last_symbol"`
}

// Bus is a fan-out event bus. Subscribers receive on buffered channels;
// events are dropped per-subscriber when a buffer is full so one stuck
// listener cannot stall collection.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel function removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Emit delivers an event to every subscriber without blocking.
func (b *Bus) Emit(eventType EventType, source string, data interface{}) {
	event := Event{
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than stall the emitter.
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
