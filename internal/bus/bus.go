// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

const (
	// Conversation turn events
	EventTypeMessageAdded    EventType = "turn.message_added"
	EventTypeThinkingStarted EventType = "turn.thinking_started"
	EventTypeSpeakingStarted EventType = "turn.speaking_started"
	EventTypeSpeakingEnded   EventType = "turn.speaking_ended"
	EventTypeTurnError       EventType = "turn.error"

	// Avatar events
	EventTypeAvatarStateChanged EventType = "avatar.state_changed"

	// Translation events
	EventTypeTranslationDegraded EventType = "translate.degraded"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	nextID   uint64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe adds a handler for an event type. The returned func removes it.
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() { b.unsubscribe(eventType, id) }
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) func() {
	cancels := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		cancels = append(cancels, b.Subscribe(et, handler))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (b *EventBus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) snapshot(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.handlers[eventType]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync delivers an event to each handler in subscription order and
// returns once all of them have run.
func (b *EventBus) PublishSync(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		handler(event)
	}
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
}
