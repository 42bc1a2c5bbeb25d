package bus

import "context"

// EventBus carries events from peer connections → controller.
// Connections call Publish; the controller loop reads via Subscribe.
type EventBus struct {
	ch chan PeerEvent
}

func NewEventBus(bufSize int) *EventBus {
	return &EventBus{ch: make(chan PeerEvent, bufSize)}
}

// Publish delivers an event to the controller. It gives up when ctx is done,
// so a connection shutting down never blocks on a controller that has stopped.
func (b *EventBus) Publish(ctx context.Context, ev PeerEvent) bool {
	select {
	case b.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Subscribe returns a receive-only view of the event channel.
func (b *EventBus) Subscribe() <-chan PeerEvent {
	return b.ch
}

// Len reports how many events are waiting.
func (b *EventBus) Len() int { return len(b.ch) }
