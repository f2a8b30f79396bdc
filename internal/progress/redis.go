package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saasplatform/backend/internal/domain"
)

const relayPattern = domain.TopicPrefix + "*"

// RedisRelay publishes events to Redis channels named after their topic and
// feeds events received from Redis into the local Hub, so every replica's
// subscribers see deployments executed on any replica.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
	retry  time.Duration

	subscribed atomic.Bool
}

// NewRedisRelay creates a relay between client and hub.
func NewRedisRelay(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, logger: logger, retry: time.Second}
}

// Publish sends ev to Redis. While the relay is subscribed, local subscribers
// get the event when it comes back from Redis. Otherwise, or when Redis rejects
// the publish, it is delivered to the local hub directly.
func (r *RedisRelay) Publish(ctx context.Context, ev domain.ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("failed to encode progress event", zap.String("topic", ev.Topic()), zap.Error(err))
		return
	}
	if err := r.client.Publish(ctx, ev.Topic(), payload).Err(); err != nil {
		r.logger.Error("failed to publish progress event, delivering locally", zap.String("topic", ev.Topic()), zap.Error(err))
		r.hub.Publish(ctx, ev)
		return
	}
	if !r.subscribed.Load() {
		r.hub.Publish(ctx, ev)
	}
}

// Start subscribes to every deployment topic and returns once Redis has
// confirmed the subscription. It then relays in the background until ctx ends,
// resubscribing whenever the subscription is lost. The returned channel is
// closed when the background loop exits.
func (r *RedisRelay) Start(ctx context.Context) (<-chan struct{}, error) {
	pubsub, err := r.subscribe(ctx)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ctx, pubsub)
	}()
	return done, nil
}

func (r *RedisRelay) subscribe(ctx context.Context) (*redis.PubSub, error) {
	pubsub := r.client.PSubscribe(ctx, relayPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("progress relay: subscribe failed: %w", err)
	}
	r.subscribed.Store(true)
	r.logger.Info("progress relay subscribed", zap.String("pattern", relayPattern))
	return pubsub, nil
}

func (r *RedisRelay) run(ctx context.Context, pubsub *redis.PubSub) {
	for {
		err := r.relay(ctx, pubsub)
		r.subscribed.Store(false)
		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("progress relay lost its subscription", zap.Error(err))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retry):
			}
			pubsub, err = r.subscribe(ctx)
			if err == nil {
				break
			}
			r.logger.Warn("progress relay resubscribe failed", zap.Error(err))
		}
	}
}

// relay feeds messages into the hub until ctx ends or the channel closes.
func (r *RedisRelay) relay(ctx context.Context, pubsub *redis.PubSub) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis channel closed")
			}
			var ev domain.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("dropping malformed progress event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.hub.Publish(ctx, ev)
		}
	}
}

// Ping checks the Redis connection and that the relay is subscribed.
func (r *RedisRelay) Ping(ctx context.Context) error {
	if !r.subscribed.Load() {
		return errors.New("progress relay is not subscribed")
	}
	return r.client.Ping(ctx).Err()
}
