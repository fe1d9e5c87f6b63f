package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Conversation is the single record for an unordered pair of participants.
// Participants are canonically sorted so (A,B) and (B,A) always resolve to
// the same record. Conversations are created lazily on first message and
// never deleted.
type Conversation struct {
	ID                 uuid.UUID      `json:"id"`
	Participants       [2]string      `json:"participants"`
	LastMessageAt      time.Time      `json:"last_message_at"`
	LastMessagePreview string         `json:"last_message_preview,omitempty"`
	UnreadCounters     map[string]int `json:"unread_counters"`
}

// CanonicalPair returns the two user ids in their canonical (sorted) order.
func CanonicalPair(a, b string) [2]string {
	pair := []string{a, b}
	sort.Strings(pair)
	return [2]string{pair[0], pair[1]}
}

// Has reports whether userID participates in the conversation.
func (c Conversation) Has(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Peer returns the other participant.
func (c Conversation) Peer(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}
