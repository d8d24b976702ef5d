package trainer

import (
	"sync"
	"testing"
	"time"
)

func TestNewEventBus(t *testing.T) {
	eb := NewEventBus()
	if eb == nil {
		t.Fatal("expected non-nil EventBus")
	}
	if eb.handlers == nil {
		t.Fatal("expected non-nil handlers map")
	}
}

func TestEventBus_Subscribe(t *testing.T) {
	eb := NewEventBus()
	called := false

	eb.Subscribe(EventEpisodeStart, func(e Event) {
		called = true
	})

	eb.Publish(Event{Type: EventEpisodeStart})

	if !called {
		t.Error("handler was not called")
	}
}

func TestEventBus_SubscribeOtherType(t *testing.T) {
	eb := NewEventBus()
	called := false

	eb.Subscribe(EventPolicyUpdate, func(e Event) {
		called = true
	})

	eb.Publish(Event{Type: EventDecision})

	if called {
		t.Error("handler fired for an unsubscribed event type")
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	eb := NewEventBus()
	count := 0

	eb.SubscribeAll(func(e Event) {
		count++
	})

	eb.Publish(Event{Type: EventEpochStart})
	eb.Publish(Event{Type: EventDecision})
	eb.Publish(Event{Type: EventRunComplete})

	if count != 3 {
		t.Errorf("expected 3 calls, got %d", count)
	}
}

func TestEventBus_PublishWithData(t *testing.T) {
	eb := NewEventBus()
	var received Event

	eb.Subscribe(EventDecision, func(e Event) {
		received = e
	})

	data := map[string]interface{}{"action": "ADD"}
	eb.PublishWithData(EventDecision, "run-123", data)

	if received.RunID != "run-123" {
		t.Errorf("expected run 'run-123', got %q", received.RunID)
	}
	if received.Data["action"] != "ADD" {
		t.Error("data not properly passed")
	}
}

func TestEventBus_PublishSimple(t *testing.T) {
	eb := NewEventBus()
	var received Event

	eb.Subscribe(EventRunComplete, func(e Event) {
		received = e
	})

	eb.PublishSimple(EventRunComplete, "run-456")

	if received.RunID != "run-456" {
		t.Errorf("expected run 'run-456', got %q", received.RunID)
	}
	if received.Type != EventRunComplete {
		t.Errorf("expected type EventRunComplete, got %v", received.Type)
	}
}

func TestEventBus_TimestampAutoSet(t *testing.T) {
	eb := NewEventBus()
	var received Event

	eb.Subscribe(EventEpochStart, func(e Event) {
		received = e
	})

	eb.Publish(Event{Type: EventEpochStart})

	if received.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if time.Since(received.Timestamp) > time.Second {
		t.Error("timestamp not close to now")
	}
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	eb := NewEventBus()
	var mu sync.Mutex
	count := 0

	eb.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.PublishSimple(EventDecision, "run-1")
		}()
	}
	wg.Wait()

	if count != 10 {
		t.Errorf("expected 10 events, got %d", count)
	}
}
