package ringchan

import (
	"context"
	"sync"
)

// Broadcaster fans values out to any number of subscribers. Each subscriber
// owns a RingChannel, so a slow subscriber loses its oldest values instead of
// stalling Publish.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[*RingChannel[T]]struct{}
	closed bool
	done   chan struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*RingChannel[T]]struct{}), done: make(chan struct{})}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// channel is closed when ctx is done or the Broadcaster is closed.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, buffer int) <-chan T {
	if buffer <= 0 {
		buffer = 1
	}
	rc := New[T](buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		rc.Close()
		return rc.C()
	}
	b.subs[rc] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.remove(rc)
		case <-b.done:
		}
	}()

	return rc.C()
}

func (b *Broadcaster[T]) remove(rc *RingChannel[T]) {
	b.mu.Lock()
	delete(b.subs, rc)
	b.mu.Unlock()
	rc.Close()
}

// Publish delivers v to every current subscriber without blocking and
// returns how many of them had to discard their oldest value.
func (b *Broadcaster[T]) Publish(v T) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for rc := range b.subs {
		if rc.Send(v) {
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for rc := range b.subs {
		rc.Close()
		delete(b.subs, rc)
	}
}
