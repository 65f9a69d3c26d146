// Package status fans document lifecycle events out to per-user
// subscribers, feeding the live progress stream.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheaf-ai/sheaf/internal/document"
)

// subscriberBuffer is each subscriber's channel capacity. A full
// channel drops events rather than blocking the pipeline.
const subscriberBuffer = 16

// Event is one document lifecycle update.
type Event struct {
	DocumentID uuid.UUID       `json:"document_id"`
	Status     document.Status `json:"status"`
	Message    string          `json:"message,omitempty"`
	Data       map[string]any  `json:"data,omitempty"`
	At         time.Time       `json:"at"`
}

// Broker routes events to the subscribers of the owning user. Delivery
// is best effort: a slow subscriber loses events, never stalls
// publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[chan Event]struct{}
	closed bool
	logger *slog.Logger
}

// NewBroker creates an event broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		subs:   make(map[uuid.UUID]map[chan Event]struct{}),
		logger: logger,
	}
}

// Publish sends the event to every subscriber of userID. Never blocks.
func (b *Broker) Publish(userID uuid.UUID, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subs[userID] {
		select {
		case ch <- ev:
		default:
			if b.logger != nil {
				b.logger.Debug("status event dropped, subscriber too slow",
					"user_id", userID,
					"document_id", ev.DocumentID)
			}
		}
	}
}

// Subscribe registers for the user's events. The returned cancel
// function unregisters and closes the channel; it is safe to call more
// than once.
func (b *Broker) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan Event]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			set, ok := b.subs[userID]
			if ok {
				_, ok = set[ch]
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, userID)
				}
			}
			b.mu.Unlock()
			// Close only if still registered; Close() already closed
			// the channel otherwise.
			if ok {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close drops all subscribers and closes their channels. Publish
// becomes a no-op afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for ch := range set {
			close(ch)
		}
	}
	b.subs = nil
}
