package trainer

import (
	"sync"
	"time"
)

// EventType represents the type of training event.
type EventType string

const (
	EventRunStart        EventType = "run_start"
	EventEpochStart      EventType = "epoch_start"
	EventEpisodeStart    EventType = "episode_start"
	EventEpisodeEnd      EventType = "episode_end"
	EventDecision        EventType = "decision"
	EventPolicyUpdate    EventType = "policy_update"
	EventCheckpointSaved EventType = "checkpoint_saved"
	EventGuardViolation  EventType = "guard_violation"
	EventAnswerGraded    EventType = "answer_graded"
	EventRunComplete     EventType = "run_complete"
	EventRunError        EventType = "run_error"
)

// Event represents a training event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RunID     string
	Data      map[string]interface{}
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus manages event publication and subscription. It decouples
// the training loop from consumers like the TUI and log sinks.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers. Handlers run on
// the publishing goroutine; slow consumers should buffer themselves.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if handlers, ok := eb.handlers[event.Type]; ok {
		for _, handler := range handlers {
			handler(event)
		}
	}

	for _, handler := range eb.allHandlers {
		handler(event)
	}
}

// PublishSimple is a convenience method for publishing events without
// additional data.
func (eb *EventBus) PublishSimple(eventType EventType, runID string) {
	eb.Publish(Event{
		Type:  eventType,
		RunID: runID,
	})
}

// PublishWithData publishes an event with associated data.
func (eb *EventBus) PublishWithData(eventType EventType, runID string, data map[string]interface{}) {
	eb.Publish(Event{
		Type:  eventType,
		RunID: runID,
		Data:  data,
	})
}
