package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const resubscribeDelay = 500 * time.Millisecond

// RedisBus fans events out across instances through Redis pub/sub.
// Delivery ordering is the backend's best-effort FIFO per channel.
type RedisBus struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisBus connects and pings the backend so a misconfigured URL fails
// at startup instead of on the first publish.
func NewRedisBus(ctx context.Context, url string, log *slog.Logger) (*RedisBus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBus{client: client, log: log}, nil
}

func (b *RedisBus) Enabled() bool { return true }

// Client exposes the underlying connection so collaborators sharing the
// same backend (presence) reuse it instead of dialing twice.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a live subscription on one channel. The receive loop
// retries on transient connectivity loss instead of terminating the
// subscription; only Close or the subscribing context ends it.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round trip so a dead backend surfaces here.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go sub.receive(ctx, channel, b.log)
	return sub, nil
}

// Close releases the pub/sub connection. Session teardown must call this
// promptly: a dangling subscription keeps a live channel on the backend
// with no consumer.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan []byte { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) receive(ctx context.Context, channel string, log *slog.Logger) {
	defer close(s.events)
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			default:
			}
			// Transient backend trouble: back off and retry the loop,
			// the connection is re-established underneath.
			log.Warn("Fanout subscription receive failed, retrying", "channel", channel, "err", err)
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			case <-time.After(resubscribeDelay):
			}
			continue
		}
		select {
		case s.events <- []byte(msg.Payload):
		case <-s.done:
			return
		case <-ctx.Done():
			_ = s.Close()
			return
		}
	}
}
