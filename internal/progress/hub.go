package progress

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/domain"
)

// Hub fans deployment events out to the subscribers of each topic.
// A subscriber only sees events published after it joined; nothing is replayed.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	logger *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// NewSubscriber creates a subscriber that has not joined any topic.
func (h *Hub) NewSubscriber() *Subscriber {
	return newSubscriber()
}

// Subscribe creates a subscriber joined to the topic of subscriptionID.
func (h *Hub) Subscribe(subscriptionID int) *Subscriber {
	s := newSubscriber()
	h.Join(s, subscriptionID)
	return s
}

// Join adds s to the topic of subscriptionID. Joining twice is a no-op.
func (h *Hub) Join(s *Subscriber, subscriptionID int) {
	topic := domain.Topic(subscriptionID)

	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.topics[topic] = members
	}
	if _, joined := members[s]; joined {
		return
	}
	members[s] = struct{}{}
	s.topics[topic] = struct{}{}
	h.logger.Debug("subscriber joined topic", zap.String("topic", topic), zap.Int("members", len(members)))
}

// Leave removes s from the topic of subscriptionID. Leaving a topic not joined is a no-op.
func (h *Hub) Leave(s *Subscriber, subscriptionID int) {
	topic := domain.Topic(subscriptionID)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, topic)
}

func (h *Hub) leaveLocked(s *Subscriber, topic string) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, joined := members[s]; !joined {
		return
	}
	delete(members, s)
	delete(s.topics, topic)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
	h.logger.Debug("subscriber left topic", zap.String("topic", topic), zap.Int("members", len(members)))
}

// Unsubscribe removes s from every topic and closes it. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	for topic := range s.topics {
		h.leaveLocked(s, topic)
	}
	h.mu.Unlock()
	s.close()
}

// Publish delivers ev to every current member of its topic without blocking.
// Events published by one caller on a topic are received in the same order.
func (h *Hub) Publish(ctx context.Context, ev domain.ProgressEvent) {
	topic := ev.Topic()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.topics[topic] {
		s.deliver(ev)
	}
}

// Topics returns the number of topics with at least one member.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// Members returns the number of subscribers joined to the topic of subscriptionID.
func (h *Hub) Members(subscriptionID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[domain.Topic(subscriptionID)])
}
