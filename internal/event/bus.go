package event

import (
	"context"
	"fmt"
	"sync"
)

// DefaultBusCapacity is how many messages the bus retains for slow
// subscribers before they start lagging.
const DefaultBusCapacity = 1000

// LaggedError tells a subscriber how many messages it missed. Its read
// position has been advanced to the oldest retained message; receiving
// again resumes from there.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged behind by %d messages", e.Missed)
}

// Bus is a bounded broadcast queue. Every subscriber sees every message
// enqueued after its subscription, in enqueue order, until it falls more
// than the capacity behind.
type Bus struct {
	mu     sync.Mutex
	ring   []ServerWsMessage
	head   uint64
	subs   int
	notify chan struct{}
	closed bool
}

// NewBus creates a bus retaining up to capacity messages.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		ring:   make([]ServerWsMessage, capacity),
		notify: make(chan struct{}),
	}
}

// Send enqueues a message. It never blocks; with no subscribers the
// message is dropped outright.
func (b *Bus) Send(msg ServerWsMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.subs == 0 {
		return
	}

	b.ring[b.head%uint64(len(b.ring))] = msg
	b.head++

	// Wake everyone blocked on the previous notify channel.
	close(b.notify)
	b.notify = make(chan struct{})
}

// Close wakes all blocked subscribers; their next receive after draining
// returns an error.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// Subscribe registers a new subscriber positioned after all messages
// enqueued so far.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs++
	return &Subscription{bus: b, pos: b.head}
}

// Subscription is one subscriber's read position on the bus. Not safe for
// concurrent use by multiple goroutines.
type Subscription struct {
	bus  *Bus
	pos  uint64
	done bool
}

// Unsubscribe releases the subscription. Further receives fail.
func (s *Subscription) Unsubscribe() {
	if s.done {
		return
	}
	s.done = true
	s.bus.mu.Lock()
	s.bus.subs--
	s.bus.mu.Unlock()
}

// Recv blocks until a message is available, the context ends, or the bus
// closes. A subscriber that fell behind past the bus capacity gets a
// LaggedError once, with its position advanced to the oldest retained
// message.
func (s *Subscription) Recv(ctx context.Context) (ServerWsMessage, error) {
	if s.done {
		return nil, fmt.Errorf("subscription is closed")
	}

	for {
		s.bus.mu.Lock()
		capacity := uint64(len(s.bus.ring))
		if s.bus.head > s.pos {
			if s.bus.head-s.pos > capacity {
				oldest := s.bus.head - capacity
				missed := oldest - s.pos
				s.pos = oldest
				s.bus.mu.Unlock()
				return nil, &LaggedError{Missed: missed}
			}
			msg := s.bus.ring[s.pos%capacity]
			s.pos++
			s.bus.mu.Unlock()
			return msg, nil
		}
		if s.bus.closed {
			s.bus.mu.Unlock()
			return nil, fmt.Errorf("bus is closed")
		}
		notify := s.bus.notify
		s.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}
