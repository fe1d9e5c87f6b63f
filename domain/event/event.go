// Package event defines the JSON frames exchanged over live sessions and
// the fanout bus. The same shapes travel both hops: what a coordinator
// publishes is what a session writes to its client.
package event

import "chat-relay/domain"

const (
	TypeMessage     = "message"
	TypeAck         = "ack"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeDelivered   = "delivered"
	TypeSeen        = "seen"
	TypeError       = "error"
)

// Inbound is the envelope read off a session. Type is empty for a plain
// send; everything else is discriminated by it.
type Inbound struct {
	Type            string `json:"type,omitempty"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	Content         string `json:"content,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	ConversationID  string `json:"conversation_id,omitempty"`
}

// Message is the fanout event for a freshly persisted message. The ack
// block repeats the identifiers so the receiving client can acknowledge
// without another round trip.
type Message struct {
	Type    string     `json:"type"`
	From    string     `json:"from"`
	Content string     `json:"content"`
	Ack     domain.Ack `json:"ack"`
}

func NewMessage(msg domain.Message, ack domain.Ack) Message {
	return Message{
		Type:    TypeMessage,
		From:    msg.SenderID,
		Content: msg.Content,
		Ack:     ack,
	}
}

// Ack is the synchronous reply to the sender's session.
type Ack struct {
	Type string     `json:"type"`
	Ack  domain.Ack `json:"ack"`
}

func NewAck(ack domain.Ack) Ack {
	return Ack{Type: TypeAck, Ack: ack}
}

// Typing is the fanout-only indicator; it never touches storage.
type Typing struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// Receipt reports a delivered or seen transition to the peer.
type Receipt struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	From           string `json:"from,omitempty"`
}

// Error is sent back on a malformed inbound frame; the session stays
// open.
type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewError(reason string) Error {
	return Error{Type: TypeError, Error: reason}
}
