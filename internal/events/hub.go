package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Event is one message on the stream.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription receives events until it is closed by Unsubscribe.
type Subscription struct {
	ID     string
	Events <-chan Event
	ch     chan Event
}

// Hub fans events out to subscribers. A slow subscriber loses events rather
// than stalling publishers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	now    func() time.Time
}

// NewHub creates a hub with the given per-subscriber buffer; buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		now:    time.Now,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), Events: ch, ch: ch}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Repeated calls are safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
}

// Publish delivers an event to every subscriber without blocking.
func (h *Hub) Publish(eventType string, payload any) {
	evt := Event{Type: eventType, Data: payload, Timestamp: h.now().UnixMilli()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			slog.Warn("dropping event for slow subscriber", "subscriber", id, "type", eventType)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
