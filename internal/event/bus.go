package event

import (
	"sync"
	"sync/atomic"
)

// defaultBuffer is the per-subscription channel size.
const defaultBuffer = 256

// Bus is the in-process fan-out for recorded events. Publish never
// blocks: a subscriber whose buffer is full misses the event and the drop
// is counted.
//
// The Bus is created once in main, handed to the pipeline and the drivers
// by reference, and closed at shutdown.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
}

// Subscription receives events for a set of event types. An empty set
// means every type.
type Subscription struct {
	topics map[string]struct{}
	ch     chan Event
}

// Events returns the receive channel. It is closed by Unsubscribe or when
// the Bus closes.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// NewBus creates an open Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for the given event types (all types
// when none are given). buffer <= 0 uses the default size. Subscribing to
// a closed Bus returns a subscription whose channel is already closed.
func (b *Bus) Subscribe(buffer int, topics ...string) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &Subscription{
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan Event, buffer),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice, or
// after Close, is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish delivers ev to every subscriber of ev.Type without blocking.
func (b *Bus) Publish(ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	for sub := range b.subs {
		if !sub.wants(ev.Type) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscription. Later publishes fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}
