package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/repositories"
)

// Reconciler repairs conversations left stale by the non-atomic persist
// sequence: a crash between the message append and the conversation
// update leaves the record with an outdated preview and activity
// timestamp. The damage is degraded reads, not corruption, so a periodic
// sweep comparing each conversation against its newest stored message is
// enough to heal it.
type Reconciler struct {
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	log           *slog.Logger
	interval      time.Duration
}

func NewReconciler(conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	log *slog.Logger, interval time.Duration) *Reconciler {
	return &Reconciler{
		conversations: conversations,
		messages:      messages,
		log:           log,
		interval:      interval,
	}
}

func (w *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.log.Warn("Reconciliation sweep failed", "err", err)
			}
		}
	}
}

func (w *Reconciler) sweep(ctx context.Context) error {
	repaired := 0
	err := w.conversations.Walk(func(convo domain.Conversation) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		newest, err := w.messages.Newest(convo.ID)
		if err != nil || newest == nil {
			return err
		}
		if !newest.Timestamp.After(convo.LastMessageAt) {
			return nil
		}
		changed, err := w.conversations.Recompute(convo.ID, *newest)
		if err != nil {
			return err
		}
		if changed {
			repaired++
		}
		return nil
	})
	if repaired > 0 {
		w.log.Info("Repaired stale conversations", "count", repaired)
	}
	return err
}
