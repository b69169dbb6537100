// Package events fans membership and account events out to in-process
// subscribers, most importantly the realtime push pump.
package events

import (
	"context"
	"sync"
	"time"

	"tasknest.org/internal/registry"
)

// Event is a domain occurrence addressed to a set of principals.
type Event struct {
	Type       string    `json:"type"`
	Data       any       `json:"data"`
	Recipients []string  `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

// Bus fan-outs events to all active subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus initialises an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Pump forwards bus events to the connection registry until the context
// ends. Delivery inherits the registry's best-effort semantics: recipients
// without a live connection simply miss the event.
func Pump(ctx context.Context, bus *Bus, reg *registry.Registry) {
	ch := bus.Subscribe(ctx)
	for evt := range ch {
		reg.SendToUsers(evt.Recipients, registry.Envelope{
			Type:      evt.Type,
			Data:      evt.Data,
			Timestamp: evt.Timestamp,
		})
	}
}
