package services

import (
	"context"
	"log"
	"sync"

	"habitQuestAPI/internal/events"
)

// EventListener receives gamification events. Returned errors are logged,
// never propagated to the publisher.
type EventListener func(ctx context.Context, e events.Event) error

// EventBus is the in-process event channel. Delivery is synchronous and
// at-least-once, within the request that triggered the event; a failing
// or panicking listener cannot fail the caller.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[int]EventListener
	nextID    int
}

func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[int]EventListener)}
}

// Subscribe attaches a listener and returns its id for Unsubscribe.
func (b *EventBus) Subscribe(l EventListener) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.listeners[b.nextID] = l
	return b.nextID
}

func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// Publish delivers each event to every listener in the caller's goroutine.
func (b *EventBus) Publish(ctx context.Context, evts ...events.Event) {
	b.mu.RLock()
	listeners := make([]EventListener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, e := range evts {
		for _, l := range listeners {
			b.deliver(ctx, l, e)
		}
	}
}

func (b *EventBus) deliver(ctx context.Context, l EventListener, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Event listener panicked on %s for user %s: %v", e.Type, e.UserID, r)
		}
	}()

	if err := l(ctx, e); err != nil {
		log.Printf("Event listener failed on %s for user %s: %v", e.Type, e.UserID, err)
	}
}
