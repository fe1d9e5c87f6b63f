package presence

import (
	"context"
	"sync"
	"time"
)

// LocalTracker is the in-process fallback when no Redis is configured.
// It only sees sessions of its own instance, which is exactly as much as
// a single-instance deployment needs. Expired entries linger until read
// or until Sweep runs; both treat them as offline.
type LocalTracker struct {
	mu    sync.RWMutex
	beats map[string]time.Time
	now   func() time.Time
}

func NewLocalTracker() *LocalTracker {
	return &LocalTracker{beats: make(map[string]time.Time), now: time.Now}
}

func (t *LocalTracker) Heartbeat(_ context.Context, userID string) error {
	t.mu.Lock()
	t.beats[userID] = t.now().UTC()
	t.mu.Unlock()
	return nil
}

func (t *LocalTracker) IsOnline(_ context.Context, userID string) bool {
	t.mu.RLock()
	beat, ok := t.beats[userID]
	t.mu.RUnlock()
	return ok && t.now().Sub(beat) < TTL
}

func (t *LocalTracker) Snapshot(_ context.Context, userID string) (bool, *time.Time) {
	t.mu.RLock()
	beat, ok := t.beats[userID]
	t.mu.RUnlock()
	if !ok {
		return false, nil
	}
	lastSeen := beat
	return t.now().Sub(beat) < TTL, &lastSeen
}

// Sweep drops entries past their window so the map doesn't grow with every
// user ever seen. Run periodically by the janitor worker.
func (t *LocalTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for userID, beat := range t.beats {
		if t.now().Sub(beat) >= TTL {
			delete(t.beats, userID)
			removed++
		}
	}
	return removed
}
