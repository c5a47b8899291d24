// Package broadcast fans a stream of values out to independent subscribers,
// replaying the latest value to each new subscriber.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 16

// Broadcaster delivers published values to every subscriber in publish order.
// A slow subscriber never blocks the publisher or its peers: when a
// subscriber's buffer is full the oldest buffered value is dropped to make
// room for the newest one.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	current     T
	hasCurrent  bool
	bufferSize  int
	subscribers map[string]chan T
	closed      bool
}

// New creates a Broadcaster with the given per-subscriber buffer size.
// Sizes below one fall back to DefaultBufferSize.
func New[T any](bufferSize int) *Broadcaster[T] {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Broadcaster[T]{
		bufferSize:  bufferSize,
		subscribers: make(map[string]chan T),
	}
}

// Publish records value as the latest and forwards it to all live subscribers.
func (b *Broadcaster[T]) Publish(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.current = value
	b.hasCurrent = true

	for id, ch := range b.subscribers {
		b.send(id, ch, value)
	}
}

// send delivers value to ch, dropping the oldest buffered value when full.
// Caller holds b.mu.
func (b *Broadcaster[T]) send(id string, ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}

	// Buffer full: drop the oldest value, then deliver the newest.
	select {
	case <-ch:
		log.Debug().Str("subscriber", id).Msg("Slow subscriber, dropped oldest status")
	default:
	}
	select {
	case ch <- value:
	default:
		log.Warn().Str("subscriber", id).Msg("Subscriber buffer still full, dropping update")
	}
}

// Subscribe registers a new subscriber. The returned channel's first value is
// the latest published value, if any, so subscribers never observe an
// uninitialized state. Cancel the subscription with Unsubscribe(id).
func (b *Broadcaster[T]) Subscribe() (string, <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan T, b.bufferSize)
	if b.closed {
		close(ch)
		return id, ch
	}

	if b.hasCurrent {
		ch <- b.current
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored, so double unsubscribes are safe.
func (b *Broadcaster[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Current returns the latest published value and whether one exists.
func (b *Broadcaster[T]) Current() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, b.hasCurrent
}

// SubscriberCount returns the number of live subscribers.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels and rejects further publishes.
// Safe to call more than once.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
