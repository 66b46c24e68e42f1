package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBuffer is the number of events a slow subscription can lag behind before events are dropped.
const DefaultBuffer = 16

type (
	// A Hub is the in-process Registry.
	// A user's topic is created on its first subscription and removed with its last one.
	Hub struct {
		mu     sync.RWMutex
		topics map[string]map[*subscription]struct{}
		buffer int
		now    func() time.Time
	}

	// A HubOption configures a Hub.
	HubOption func(*Hub)

	subscription struct {
		hub    *Hub
		userID string
		events chan Event
		once   sync.Once
	}
)

// WithBuffer sets the per subscription buffer.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubClock overrides the clock stamping events.
func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub returns a new Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics: map[string]map[*subscription]struct{}{},
		buffer: DefaultBuffer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe implements Registry.
func (h *Hub) Subscribe(userID string) Subscription {
	s := &subscription{
		hub:    h,
		userID: userID,
		events: make(chan Event, h.buffer),
	}

	h.mu.Lock()
	topic, ok := h.topics[userID]
	if !ok {
		topic = map[*subscription]struct{}{}
		h.topics[userID] = topic
	}
	topic[s] = struct{}{}
	h.mu.Unlock()

	return s
}

// Publish implements Registry.
func (h *Hub) Publish(userID string, event Event) {
	event.Timestamp = Timestamp(h.now())

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.topics[userID] {
		select {
		case s.events <- event:
		default:
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"type":    event.Type,
			}).Warn("notification dropped, subscriber is too slow")
		}
	}
}

// Topics returns the number of users having at least one subscription.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

func (h *Hub) unsubscribe(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic := h.topics[s.userID]
	delete(topic, s)
	if len(topic) == 0 {
		delete(h.topics, s.userID)
	}
	close(s.events)
}

func (s *subscription) Events() <-chan Event {
	return s.events
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}
