package bus

import (
	"context"
	"sync"
)

// NoopBus is the fallback when no distributed backend is configured.
// Publish has no effect beyond the local process: cross-instance fanout
// silently degrades to local-only delivery, which the coordinator routes
// through the connection registry instead. Subscribers on another
// instance only see the message once they fetch it through pagination.
// That is a deliberate capability degrade, not a failure.
type NoopBus struct{}

func NewNoopBus() *NoopBus { return &NoopBus{} }

func (*NoopBus) Enabled() bool { return false }

func (*NoopBus) Publish(context.Context, string, []byte) error { return nil }

// Subscribe hands out an inert subscription: it never delivers, it only
// closes. Sessions skip subscribing on a disabled bus, but anything that
// does subscribe must still get a well-behaved handle.
func (*NoopBus) Subscribe(ctx context.Context, _ string) (Subscription, error) {
	sub := &noopSubscription{events: make(chan []byte)}
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

type noopSubscription struct {
	events chan []byte
	once   sync.Once
}

func (s *noopSubscription) Events() <-chan []byte { return s.events }

func (s *noopSubscription) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}
