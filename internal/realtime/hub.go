package realtime

import (
	"context"
	"sync"
)

type subscriber struct {
	id       uint64
	onUpdate func(Update)
}

// Hub is an in-process topic registry. It is the Bus used when no Redis
// address is configured and the local fan-out behind RedisBus.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscriber
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{topics: make(map[string][]subscriber)}
}

// Subscribe registers onUpdate for topic
func (h *Hub) Subscribe(topic string, onUpdate func(Update)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.topics[topic] = append(h.topics[topic], subscriber{id: id, onUpdate: onUpdate})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(topic, id) })
	}
}

func (h *Hub) remove(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[topic]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
		return
	}
	h.topics[topic] = subs
}

// Dispatch delivers u to subscribers of its topic and of TopicAll.
// Callbacks run on the caller's goroutine and must not block.
func (h *Hub) Dispatch(u Update) {
	h.mu.RLock()
	targets := make([]subscriber, 0, len(h.topics[u.Topic])+len(h.topics[TopicAll]))
	targets = append(targets, h.topics[u.Topic]...)
	if u.Topic != TopicAll {
		targets = append(targets, h.topics[TopicAll]...)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.onUpdate(u)
	}
}

// SubscriberCount returns the number of subscriptions on topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish dispatches locally
func (h *Hub) Publish(_ context.Context, u Update) error {
	h.Dispatch(u)
	return nil
}

// Close is a no-op for the in-process hub
func (h *Hub) Close() error { return nil }
