// Package pubsub provides the topic-based notification bus used for
// lifecycle events and passthrough domain events.
package pubsub

import (
	"sync"
)

// Handler receives one published payload.
type Handler func(payload interface{})

type subscription struct {
	id      int
	handler Handler
}

// Bus is a topic to handler-list registry. Removal is idempotent and each
// subscription is invoked at most once per emission, even if handlers are
// added or removed while a publish is in flight.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[string][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string][]subscription)}
}

// Subscribe registers handler for topic and returns a token for Unsubscribe.
func (b *Bus) Subscribe(topic string, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes the subscription identified by id from topic.
// Unknown ids are ignored.
func (b *Bus) Unsubscribe(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}

// Publish delivers payload to every handler subscribed to topic at the time
// of the call. Handlers run synchronously on the caller's goroutine.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	subs := b.topics[topic]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		sub.handler(payload)
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
