// Package domain contains core concepts of the chat system.
// Messages are immutable once persisted, except for the delivered and
// seen flags which only ever transition false to true.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PreviewLength bounds the conversation preview stored alongside a message.
const PreviewLength = 200

// PushBodyLength bounds the body handed to the push collaborator.
const PushBodyLength = 100

// Message represents a one-to-one chat message.
type Message struct {
	ID              uuid.UUID `json:"id"`
	ConversationID  uuid.UUID `json:"conversation_id"`
	SenderID        string    `json:"sender_id"`
	ReceiverID      string    `json:"receiver_id"`
	Content         string    `json:"content"`
	Lang            string    `json:"lang,omitempty"` // ISO 639-1 tag, best effort
	Timestamp       time.Time `json:"timestamp"`
	Delivered       bool      `json:"delivered"`
	Seen            bool      `json:"seen"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
}

// Preview shortens content to the stored conversation preview length.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength])
}

// PushBody shortens content for the offline push notification.
func PushBody(content string) string {
	runes := []rune(content)
	if len(runes) <= PushBodyLength {
		return content
	}
	return string(runes[:PushBodyLength])
}

// ValidContent reports whether content survives trimming.
func ValidContent(content string) bool {
	return strings.TrimSpace(content) != ""
}
