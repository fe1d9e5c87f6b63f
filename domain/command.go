package domain

import (
	"time"

	"github.com/google/uuid"
)

// SendCommand carries one inbound send through the coordinator pipeline.
type SendCommand struct {
	SenderID        string
	ReceiverID      string
	Content         string
	ClientMessageID string
}

// Ack is the synchronous reply to the originating session after a send
// has been persisted. ClientMessageID is echoed back untouched so clients
// can deduplicate their own retries.
type Ack struct {
	MessageID       uuid.UUID `json:"message_id"`
	ConversationID  uuid.UUID `json:"conversation_id"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
}

// MarkCommand asks for an idempotent delivered or seen transition plus a
// fanout of the outcome to the sender's channel.
type MarkCommand struct {
	MessageID      uuid.UUID
	ConversationID uuid.UUID
	From           string
	To             string
}

// PresenceSnapshot is the read-side answer for a presence query.
type PresenceSnapshot struct {
	UserID   string     `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
