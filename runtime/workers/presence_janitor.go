package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/presence"
)

// PresenceJanitor sweeps expired entries out of the in-memory presence
// tracker. Only wired when the local tracker is in use; the Redis tracker
// expires keys by itself.
type PresenceJanitor struct {
	tracker  *presence.LocalTracker
	log      *slog.Logger
	interval time.Duration
}

func NewPresenceJanitor(tracker *presence.LocalTracker, log *slog.Logger, interval time.Duration) *PresenceJanitor {
	return &PresenceJanitor{tracker: tracker, log: log, interval: interval}
}

func (w *PresenceJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := w.tracker.Sweep(); removed > 0 {
				w.log.Debug("Swept expired presence entries", "count", removed)
			}
		}
	}
}
