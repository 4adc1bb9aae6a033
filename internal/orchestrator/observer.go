package orchestrator

import (
	"github.com/normanking/voiceavatar/internal/bus"
	"github.com/normanking/voiceavatar/internal/conversation"
)

// Observer receives the side effects of a turn, in order, from the
// orchestrator's worker goroutine.
type Observer interface {
	OnThinkingStart()
	OnMessageAdd(turn conversation.Turn)
	OnSpeakingStart(text string)
	OnSpeakingEnd()
	OnError(message string)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnThinkingStart() {}
func (NopObserver) OnMessageAdd(conversation.Turn) {}
func (NopObserver) OnSpeakingStart(string) {}
func (NopObserver) OnSpeakingEnd() {}
func (NopObserver) OnError(string) {}

// Observers fans callbacks out to several observers in order.
type Observers []Observer

func (os Observers) OnThinkingStart() {
	for _, o := range os {
		o.OnThinkingStart()
	}
}

func (os Observers) OnMessageAdd(turn conversation.Turn) {
	for _, o := range os {
		o.OnMessageAdd(turn)
	}
}

func (os Observers) OnSpeakingStart(text string) {
	for _, o := range os {
		o.OnSpeakingStart(text)
	}
}

func (os Observers) OnSpeakingEnd() {
	for _, o := range os {
		o.OnSpeakingEnd()
	}
}

func (os Observers) OnError(message string) {
	for _, o := range os {
		o.OnError(message)
	}
}

// BusObserver publishes every callback to an event bus. Events are
// published synchronously so subscribers see them in turn order.
type BusObserver struct {
	eventBus *bus.EventBus
	session  string
}

// NewBusObserver creates an observer tagging events with session
func NewBusObserver(eventBus *bus.EventBus, session string) *BusObserver {
	return &BusObserver{eventBus: eventBus, session: session}
}

func (b *BusObserver) publish(t bus.EventType, data map[string]any) {
	if data == nil {
		data = make(map[string]any, 1)
	}
	data["session"] = b.session
	b.eventBus.PublishSync(bus.Event{Type: t, Data: data})
}

func (b *BusObserver) OnThinkingStart() {
	b.publish(bus.EventTypeThinkingStarted, nil)
}

func (b *BusObserver) OnMessageAdd(turn conversation.Turn) {
	b.publish(bus.EventTypeMessageAdded, map[string]any{
		"speaker":   string(turn.Speaker),
		"text":      turn.Text,
		"timestamp": turn.Timestamp,
	})
}

func (b *BusObserver) OnSpeakingStart(text string) {
	b.publish(bus.EventTypeSpeakingStarted, map[string]any{"text": text})
}

func (b *BusObserver) OnSpeakingEnd() {
	b.publish(bus.EventTypeSpeakingEnded, nil)
}

func (b *BusObserver) OnError(message string) {
	b.publish(bus.EventTypeTurnError, map[string]any{"message": message})
}
