package pubsub

import (
	"context"
	"sync"

	"solana-token-feed/internal/domain"
)

// Broker is an in-process ChangePublisher. Each subscriber has a bounded
// queue; a change is dropped for a subscriber whose queue is full.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]chan domain.Change
	nextID uint64
	closed bool
}

var _ ChangePublisher = (*Broker)(nil)

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]chan domain.Change)}
}

// Subscribe registers a subscriber with a queue of size buffer. The returned
// cancel func unregisters it and closes the channel.
func (b *Broker) Subscribe(buffer int) (<-chan domain.Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Change, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers change to every subscriber without blocking.
func (b *Broker) Publish(_ context.Context, change domain.Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of registered subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unregisters and closes every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.closed = true
}
