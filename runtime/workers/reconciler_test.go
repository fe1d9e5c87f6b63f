package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/database"
	"github.com/stretchr/testify/require"

	"chat-relay/presence"
	"chat-relay/repositories"
)

func TestReconciler_RepairsStaleConversation(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	messages := repositories.NewMessageRepository(badgerDB, log)
	conversations := repositories.NewConversationRepository(badgerDB, log)

	// Given: A message appended without the conversation update that
	// normally follows it (the crash window)
	convo, err := conversations.GetOrCreateOneToOne("alice", "bob")
	req.NoError(err)
	time.Sleep(2 * time.Millisecond)
	orphan, err := messages.Append(convo.ID, "alice", "bob", "lost update", "", "")
	req.NoError(err)

	stale, err := conversations.Get(convo.ID)
	req.NoError(err)
	req.Empty(stale.LastMessagePreview)

	// When: The reconciler sweeps
	reconciler := NewReconciler(conversations, messages, log, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = reconciler.Run(ctx)

	// Then: The conversation caught up with its newest message
	repaired, err := conversations.Get(convo.ID)
	req.NoError(err)
	req.Equal("lost update", repaired.LastMessagePreview)
	req.True(repaired.LastMessageAt.Equal(orphan.Timestamp))
}

func TestPresenceJanitor_RunsUntilCanceled(t *testing.T) {
	req := require.New(t)

	janitor := NewPresenceJanitor(presence.NewLocalTracker(), slog.Default(), 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req.ErrorIs(janitor.Run(ctx), context.DeadlineExceeded)
}
