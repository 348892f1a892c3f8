package application

import (
	"context"
	"errors"
	"sync"
)

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("alert hub: subscription closed")

// Subscription yields the active-alert snapshot taken at subscribe time,
// then every later event in publish order. Its queue is bounded: once full,
// further events are counted and reported as a single overflow event after
// the queue drains.
type Subscription struct {
	id       string
	hub      *Hub
	capacity int

	mu       sync.Mutex
	snapshot []Event
	queue    []Event
	dropped  int
	closed   bool

	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(id string, hub *Hub, capacity int, snapshot []Event) *Subscription {
	return &Subscription{
		id:       id,
		hub:      hub,
		capacity: capacity,
		snapshot: snapshot,
		queue:    make([]Event, 0, capacity),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// enqueue never blocks. It reports whether the event was dropped.
func (s *Subscription) enqueue(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.dropped > 0 || len(s.queue) >= s.capacity {
		s.dropped++
		return true
	}
	s.queue = append(s.queue, event)
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return false
}

// Next blocks until an event is available, the context ends, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		switch {
		case len(s.snapshot) > 0:
			event := s.snapshot[0]
			s.snapshot = s.snapshot[1:]
			s.mu.Unlock()
			return event, nil
		case len(s.queue) > 0:
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, nil
		case s.dropped > 0:
			event := Event{Type: EventOverflow, Dropped: s.dropped}
			s.dropped = 0
			s.mu.Unlock()
			return event, nil
		case s.closed:
			s.mu.Unlock()
			return Event{}, ErrSubscriptionClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.signal:
		case <-s.done:
		}
	}
}

// Close detaches the subscription from the hub and releases its queue.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.hub != nil {
			s.hub.unsubscribe(s.id)
		}
		s.mu.Lock()
		s.closed = true
		s.snapshot = nil
		s.queue = nil
		s.dropped = 0
		s.mu.Unlock()
		close(s.done)
	})
}
