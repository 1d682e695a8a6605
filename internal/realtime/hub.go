// Package realtime fans issue lifecycle events out to connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/geocoder89/civichub/internal/observability"
)

const (
	EventNewIssue     = "new_issue"
	EventIssueUpdated = "issue_updated"
)

const defaultBuffer = 16

// Event is one named message with a JSON body, encoded once per publish.
type Event struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Subscriber is one connected observer. C is closed once the subscriber is
// removed from the hub, either by Unsubscribe or because it fell behind.
type Subscriber struct {
	C  <-chan Event
	ch chan Event
}

// Hub is the registry of connected subscribers. All methods are safe for
// concurrent use.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	closed bool
	prom   *observability.Prom
}

func NewHub(buffer int, prom *observability.Prom) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
		prom:   prom,
	}
}

// Subscribe registers a new observer. On a closed hub the returned
// subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan Event, h.buffer)
	s := &Subscriber{C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return s
	}

	h.subs[s] = struct{}{}
	h.setGauge()
	return s
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(s)
}

// Publish encodes payload and delivers it to every subscriber.
func (h *Hub) Publish(_ context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.Deliver(Event{Name: name, Data: data})
	return nil
}

// Deliver sends an already encoded event. Subscribers whose buffer is full
// are dropped and never retried.
func (h *Hub) Deliver(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.prom != nil {
		h.prom.EventsPublished.WithLabelValues(ev.Name).Inc()
	}

	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.removeLocked(s)
			if h.prom != nil {
				h.prom.EventsDropped.Inc()
			}
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Close disconnects everyone and refuses new subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for s := range h.subs {
		h.removeLocked(s)
	}
}

func (h *Hub) removeLocked(s *Subscriber) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
	h.setGauge()
}

func (h *Hub) setGauge() {
	if h.prom != nil {
		h.prom.StreamSubscribers.Set(float64(len(h.subs)))
	}
}
