package presence

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker records liveness as "presence:{user}" keys with a TTL, so
// expiry needs no janitor and every instance shares one view.
type RedisTracker struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisTracker(client *redis.Client, log *slog.Logger) *RedisTracker {
	return &RedisTracker{client: client, log: log}
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// Heartbeat stores the beat instant so last_seen can be answered from the
// same key that carries the TTL.
func (t *RedisTracker) Heartbeat(ctx context.Context, userID string) error {
	now := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	return t.client.Set(ctx, presenceKey(userID), now, TTL).Err()
}

func (t *RedisTracker) IsOnline(ctx context.Context, userID string) bool {
	ttl, err := t.client.TTL(ctx, presenceKey(userID)).Result()
	if err != nil {
		t.log.Debug("Presence lookup failed, treating as offline", "user", userID, "err", err)
		return false
	}
	return ttl > 0
}

func (t *RedisTracker) Snapshot(ctx context.Context, userID string) (bool, *time.Time) {
	value, err := t.client.Get(ctx, presenceKey(userID)).Result()
	if err != nil {
		// redis.Nil and transport errors both read as offline.
		return false, nil
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return true, nil
	}
	lastSeen := time.UnixMilli(millis).UTC()
	return true, &lastSeen
}
