//go:generate go run go.uber.org/mock/mockgen -source=bus.go -destination=../mocks/mock_bus.go -package=mocks

// Package bus is the cross-instance fanout abstraction. Events published
// on a logical channel reach every live subscriber of that channel,
// possibly on other process instances. Per-channel publish order is
// preserved best effort; there is no cross-channel ordering and no replay
// for subscribers that join after a publish completed.
package bus

import "context"

// Bus publishes and subscribes raw payloads by logical channel.
// Enabled distinguishes a real distributed backend from the no-op
// fallback so callers can route local delivery through the connection
// registry instead of relying on a publish that reaches nothing.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Enabled() bool
}

// Subscription is a first-class cancellable handle on one channel.
// Events delivers payloads in publish order until Close is called or the
// subscribing context ends; after either, the channel is closed. Closing
// twice is a no-op.
type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// UserChannel is the per-user fanout namespace.
func UserChannel(userID string) string {
	return "user:" + userID
}
