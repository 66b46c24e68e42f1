// Package notify is a best-effort, non-durable per-user event fan-out.
//
// Events are delivered at most once to the subscriptions alive when they are published.
// Nothing is kept for users without subscribers.
package notify

import "time"

type (
	// An Event is pushed to the live listeners of a user.
	Event struct {
		Type      string `json:"type"`
		Title     string `json:"title,omitempty"`
		Message   string `json:"message,omitempty"`
		Data      any    `json:"data,omitempty"`
		Timestamp int64  `json:"timestamp"`
	}

	// A Registry multiplexes events per user.
	// It is injected where needed so it can be backed by a distributed pub/sub.
	Registry interface {
		// Subscribe returns a new subscription receiving the future events of the user.
		Subscribe(userID string) Subscription
		// Publish stamps and forwards the event to the current subscriptions of the user.
		// It never blocks.
		Publish(userID string, event Event)
	}

	// A Subscription is a live handle on a user's events.
	Subscription interface {
		// Events returns the channel of events, closed by Close.
		Events() <-chan Event
		// Close releases the subscription.
		Close()
	}
)

// Timestamp returns the event timestamp for t, in milliseconds.
func Timestamp(t time.Time) int64 {
	return t.UnixMilli()
}
