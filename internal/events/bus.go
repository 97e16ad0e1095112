// Package events provides in-process change notification for session and
// photo record changes.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of change an Event describes.
type Type string

const (
	SessionChanged Type = "session_changed"
	RecordsChanged Type = "records_changed"
)

// Event describes a committed change. Subscribers re-query state; the
// event only says what moved.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	RecordIDs []string  `json:"record_ids,omitempty"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Publisher is the narrow interface domain services depend on.
type Publisher interface {
	Publish(ev Event)
}

const subscriberBuffer = 64

type subscriber struct {
	id string
	ch chan Event
}

// Bus fans events out to any number of subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		subs:   make(map[string]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub.id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every current subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("event dropped, subscriber buffer full", "subscriber", sub.id, "type", ev.Type)
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
