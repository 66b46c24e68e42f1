package notify_test

import (
	"sync"
	"testing"
	"time"

	"github.com/civicvault/syncd/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s notify.Subscription) notify.Event {
	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return notify.Event{}
}

func assertEmpty(t *testing.T, s notify.Subscription) {
	select {
	case e := <-s.Events():
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestPublish(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	hub := notify.NewHub(notify.WithHubClock(func() time.Time { return now }))

	s1 := hub.Subscribe("u1")
	defer s1.Close()
	s2 := hub.Subscribe("u1")
	defer s2.Close()
	other := hub.Subscribe("u2")
	defer other.Close()

	hub.Publish("u1", notify.Event{
		Type:      "report_status",
		Title:     "Report status updated",
		Message:   "Your report is now in progress.",
		Data:      map[string]string{"status": "IN_PROGRESS"},
		Timestamp: 42,
	})

	for _, s := range []notify.Subscription{s1, s2} {
		e := receive(t, s)
		assert.Equal(t, "report_status", e.Type)
		assert.Equal(t, "Your report is now in progress.", e.Message)
		assert.Equal(t, now.UnixMilli(), e.Timestamp)
	}
	assertEmpty(t, other)
}

func TestPublishWithoutSubscriber(t *testing.T) {
	hub := notify.NewHub()

	assert.NotPanics(t, func() {
		hub.Publish("u1", notify.Event{Type: "report_status"})
	})
	assert.Zero(t, hub.Topics())

	// No backlog replay.
	s := hub.Subscribe("u1")
	defer s.Close()
	assertEmpty(t, s)

	hub.Publish("u1", notify.Event{Type: "later"})
	assert.Equal(t, "later", receive(t, s).Type)
}

func TestSlowSubscriberNeverBlocksPublish(t *testing.T) {
	hub := notify.NewHub(notify.WithBuffer(1))

	s := hub.Subscribe("u1")
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("u1", notify.Event{Type: "tick"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, "tick", receive(t, s).Type)
	assertEmpty(t, s)
}

func TestClose(t *testing.T) {
	hub := notify.NewHub()

	s1 := hub.Subscribe("u1")
	s2 := hub.Subscribe("u1")
	assert.Equal(t, 1, hub.Topics())

	s1.Close()
	s1.Close()
	_, ok := <-s1.Events()
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Topics())

	s2.Close()
	assert.Zero(t, hub.Topics())
}

func TestConcurrentPublishAndClose(t *testing.T) {
	hub := notify.NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		s := hub.Subscribe("u1")
		go func() {
			defer wg.Done()
			hub.Publish("u1", notify.Event{Type: "tick"})
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.Topics())
}
