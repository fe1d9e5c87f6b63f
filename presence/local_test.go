package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalTracker_HeartbeatKeepsUserOnline(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tracker := NewLocalTracker()

	req.False(tracker.IsOnline(ctx, "alice"))

	req.NoError(tracker.Heartbeat(ctx, "alice"))
	req.True(tracker.IsOnline(ctx, "alice"))

	online, lastSeen := tracker.Snapshot(ctx, "alice")
	req.True(online)
	req.NotNil(lastSeen)
}

func TestLocalTracker_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tracker := NewLocalTracker()

	now := time.Now().UTC()
	tracker.now = func() time.Time { return now }

	req.NoError(tracker.Heartbeat(ctx, "alice"))
	req.True(tracker.IsOnline(ctx, "alice"))

	// Advance the clock past the liveness window
	tracker.now = func() time.Time { return now.Add(TTL + time.Second) }

	req.False(tracker.IsOnline(ctx, "alice"))

	// The stale beat still answers the last-seen query
	online, lastSeen := tracker.Snapshot(ctx, "alice")
	req.False(online)
	req.NotNil(lastSeen)
	req.True(lastSeen.Equal(now))
}

func TestLocalTracker_SweepDropsExpiredOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tracker := NewLocalTracker()

	now := time.Now().UTC()
	tracker.now = func() time.Time { return now }
	req.NoError(tracker.Heartbeat(ctx, "stale"))

	tracker.now = func() time.Time { return now.Add(TTL + time.Second) }
	req.NoError(tracker.Heartbeat(ctx, "fresh"))

	req.Equal(1, tracker.Sweep())
	req.True(tracker.IsOnline(ctx, "fresh"))

	// The swept user no longer has a last-seen record
	_, lastSeen := tracker.Snapshot(ctx, "stale")
	req.Nil(lastSeen)
}
