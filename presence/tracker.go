//go:generate go run go.uber.org/mock/mockgen -source=tracker.go -destination=../mocks/mock_presence_tracker.go -package=mocks

// Package presence tracks short-TTL liveness per user. Presence is
// advisory: it only decides whether an offline push is attempted. A false
// negative costs one redundant push; a false positive suppresses a needed
// one, so every failure path collapses to "offline".
package presence

import (
	"context"
	"time"
)

const (
	// TTL is the liveness window. Heartbeats arrive every
	// HeartbeatInterval, so one missed beat keeps a user online.
	TTL               = 60 * time.Second
	HeartbeatInterval = 30 * time.Second
)

type Tracker interface {
	// Heartbeat refreshes liveness with the fixed TTL. Best effort.
	Heartbeat(ctx context.Context, userID string) error
	// IsOnline is true iff a non-expired record exists. Backend failure
	// reads as false, never as an error.
	IsOnline(ctx context.Context, userID string) bool
	// Snapshot answers the read-side presence query.
	Snapshot(ctx context.Context, userID string) (online bool, lastSeen *time.Time)
}
