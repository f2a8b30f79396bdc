package progress

import (
	"context"
	"errors"
	"sync"

	"github.com/saasplatform/backend/internal/domain"
)

// ErrSubscriberClosed is returned by Next once the subscriber is unsubscribed and drained.
var ErrSubscriberClosed = errors.New("progress: subscriber closed")

// Subscriber receives the events of every topic it has joined, in publish order.
// Its queue is unbounded so publishing never blocks on a slow reader.
type Subscriber struct {
	mu     sync.Mutex
	queue  []domain.ProgressEvent
	notify chan struct{}
	closed bool

	// topics is guarded by the owning Hub's lock.
	topics map[string]struct{}
}

func newSubscriber() *Subscriber {
	return &Subscriber{
		notify: make(chan struct{}, 1),
		topics: make(map[string]struct{}),
	}
}

func (s *Subscriber) deliver(ev domain.ProgressEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, ctx ends, or the subscriber is closed.
// Events queued before close are still returned.
func (s *Subscriber) Next(ctx context.Context) (domain.ProgressEvent, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = domain.ProgressEvent{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return domain.ProgressEvent{}, ErrSubscriberClosed
		}

		select {
		case <-ctx.Done():
			return domain.ProgressEvent{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Pending returns the number of queued events.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
