package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/database"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

func TestConversationRepository_GetOrCreate_PairOrderInvariant(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repo := NewConversationRepository(badgerDB, log)

	// When: Both participants initiate in either order
	first, err := repo.GetOrCreateOneToOne("bob", "alice")
	req.NoError(err)
	second, err := repo.GetOrCreateOneToOne("alice", "bob")
	req.NoError(err)

	// Then: One record, canonically sorted participants
	req.Equal(first.ID, second.ID)
	req.Equal([2]string{"alice", "bob"}, first.Participants)
	req.Zero(first.UnreadCounters["alice"])
	req.Zero(first.UnreadCounters["bob"])
}

func TestConversationRepository_RecordNewMessage_BumpsReceiverOnly(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repo := NewConversationRepository(badgerDB, log)
	convo, err := repo.GetOrCreateOneToOne("alice", "bob")
	req.NoError(err)

	at := time.Now().UTC().Add(time.Second)
	req.NoError(repo.RecordNewMessage(convo.ID, "hello bob", "bob", at))
	req.NoError(repo.RecordNewMessage(convo.ID, "you there?", "bob", at.Add(time.Second)))

	fetched, err := repo.Get(convo.ID)
	req.NoError(err)
	req.Equal(2, fetched.UnreadCounters["bob"])
	req.Zero(fetched.UnreadCounters["alice"])
	req.Equal("you there?", fetched.LastMessagePreview)
	req.True(fetched.LastMessageAt.After(convo.LastMessageAt))
}

func TestConversationRepository_ResetUnread_LeavesPeerAlone(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repo := NewConversationRepository(badgerDB, log)
	convo, err := repo.GetOrCreateOneToOne("alice", "bob")
	req.NoError(err)

	at := time.Now().UTC().Add(time.Second)
	req.NoError(repo.RecordNewMessage(convo.ID, "to bob", "bob", at))
	req.NoError(repo.RecordNewMessage(convo.ID, "to alice", "alice", at.Add(time.Second)))

	req.NoError(repo.ResetUnread(convo.ID, "bob"))

	fetched, err := repo.Get(convo.ID)
	req.NoError(err)
	req.Zero(fetched.UnreadCounters["bob"])
	req.Equal(1, fetched.UnreadCounters["alice"])
}

func TestConversationRepository_PageForUser_NewestActivityFirst(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repo := NewConversationRepository(badgerDB, log)

	// Given: Alice talks to three peers, activity in known order
	base := time.Now().UTC().Add(time.Minute)
	var order []uuid.UUID
	for i, peer := range []string{"bob", "carol", "dave"} {
		convo, err := repo.GetOrCreateOneToOne("alice", peer)
		req.NoError(err)
		req.NoError(repo.RecordNewMessage(convo.ID, fmt.Sprintf("hi %s", peer), peer, base.Add(time.Duration(i)*time.Second)))
		order = append(order, convo.ID)
	}

	// When: Listing with limit 2
	page, next, err := repo.PageForUser("alice", 2, nil)
	req.NoError(err)
	req.NotNil(next)
	req.Len(page, 2)

	// Then: Most recent activity first
	req.Equal(order[2], page[0].ID)
	req.Equal(order[1], page[1].ID)

	// And: The cursor continues without overlap
	page, _, err = repo.PageForUser("alice", 2, next)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(order[0], page[0].ID)

	// And: Peers see their own single conversation
	page, _, err = repo.PageForUser("bob", 10, nil)
	req.NoError(err)
	req.Len(page, 1)
}

func TestConversationRepository_ActivityIndex_MovesNotDuplicates(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repo := NewConversationRepository(badgerDB, log)
	convo, err := repo.GetOrCreateOneToOne("alice", "bob")
	req.NoError(err)

	// Touch the conversation several times
	at := time.Now().UTC().Add(time.Second)
	for i := 0; i < 5; i++ {
		req.NoError(repo.RecordNewMessage(convo.ID, "ping", "bob", at.Add(time.Duration(i)*time.Second)))
	}

	// A stale activity index would make the same conversation show up
	// once per touch
	page, _, err := repo.PageForUser("alice", 10, nil)
	req.NoError(err)
	req.Len(page, 1)
}

func TestConversationRepository_Recompute_RepairsStaleRecord(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repo := NewConversationRepository(badgerDB, log)
	convo, err := repo.GetOrCreateOneToOne("alice", "bob")
	req.NoError(err)

	// Given: A message newer than the conversation record knows about
	newest := domain.Message{
		ID:             uuid.New(),
		ConversationID: convo.ID,
		SenderID:       "alice",
		ReceiverID:     "bob",
		Content:        "missed update",
		Timestamp:      time.Now().UTC().Add(time.Hour),
	}

	changed, err := repo.Recompute(convo.ID, newest)
	req.NoError(err)
	req.True(changed)

	fetched, err := repo.Get(convo.ID)
	req.NoError(err)
	req.Equal("missed update", fetched.LastMessagePreview)
	req.True(fetched.LastMessageAt.Equal(newest.Timestamp))

	// An already-aligned record reports no change
	changed, err = repo.Recompute(convo.ID, newest)
	req.NoError(err)
	req.False(changed)
}

func TestConversationRepository_PageForUser_BoundaryActivityBetweenPages(t *testing.T) {
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repo := NewConversationRepository(badgerDB, log)

	// Given: Three conversations, dave's the most recently active
	base := time.Now().UTC().Add(time.Minute)
	byPeer := map[string]uuid.UUID{}
	for i, peer := range []string{"bob", "carol", "dave"} {
		convo, err := repo.GetOrCreateOneToOne("alice", peer)
		req.NoError(err)
		req.NoError(repo.RecordNewMessage(convo.ID, fmt.Sprintf("hi %s", peer), peer, base.Add(time.Duration(i)*time.Second)))
		byPeer[peer] = convo.ID
	}

	// When: Page one ends at dave's conversation, which then receives a
	// new message before page two is fetched
	page1, cursor, err := repo.PageForUser("alice", 1, nil)
	req.NoError(err)
	req.Len(page1, 1)
	req.Equal(byPeer["dave"], page1[0].ID)
	req.NoError(repo.RecordNewMessage(byPeer["dave"], "one more", "dave", base.Add(time.Hour)))

	// Then: The vanished boundary key loses nothing; both remaining
	// conversations still appear, newest activity first
	page2, _, err := repo.PageForUser("alice", 10, cursor)
	req.NoError(err)
	req.Len(page2, 2)
	req.Equal(byPeer["carol"], page2[0].ID)
	req.Equal(byPeer["bob"], page2[1].ID)
}
