package pubsub

import (
	"context"
	"sync"
	"time"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Broker delivers each published event to every live subscriber. A
// subscriber whose queue is full misses the event; publishers never wait.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[chan Event[T]]struct{}
	closed  bool
	buffer  int
	dropped int
	now     func() time.Time
}

var (
	_ Publisher[int]  = (*Broker[int])(nil)
	_ Subscriber[int] = (*Broker[int])(nil)
)

// NewBroker creates a broker with buffer slots per subscriber. A buffer of
// zero or less uses DefaultBuffer.
func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker[T]{subs: make(map[chan Event[T]]struct{}), buffer: buffer, now: time.Now}
}

// Subscribe registers a listener. The channel closes when ctx ends or the
// broker closes, whichever comes first.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch
}

func (b *Broker[T]) remove(ch chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish stamps and delivers an event.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	ev := Event[T]{Type: eventType, Payload: payload, At: b.now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped on full queues.
func (b *Broker[T]) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
