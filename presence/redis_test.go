package presence

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// unreachableClient points at a port nothing listens on, so every command
// fails fast instead of waiting out retries.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisTracker_UnreachableBackend_ReadsAsOffline(t *testing.T) {
	req := require.New(t)
	tracker := NewRedisTracker(unreachableClient(), slog.Default())
	ctx := context.Background()

	// When: The backend cannot be reached, the beat reports its error
	req.Error(tracker.Heartbeat(ctx, "alice"))

	// Then: Liveness collapses to offline, never to an error
	req.False(tracker.IsOnline(ctx, "alice"))

	online, lastSeen := tracker.Snapshot(ctx, "alice")
	req.False(online)
	req.Nil(lastSeen)
}
