//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	chaterrors "chat-relay/errors"
)

type IMessageRepository interface {
	Append(conversationID uuid.UUID, senderID, receiverID, content, lang, clientMessageID string) (domain.Message, error)
	Page(conversationID uuid.UUID, limit int, cursor *Cursor) ([]domain.Message, *Cursor, error)
	UnreadFor(userID string, fromUserID string) ([]domain.Message, error)
	SinceForReceiver(userID string, since time.Time) ([]domain.Message, error)
	Newest(conversationID uuid.UUID) (*domain.Message, error)
	GetByID(messageID uuid.UUID) (domain.Message, error)
	MarkDelivered(messageID uuid.UUID) (bool, error)
	MarkSeen(messageID uuid.UUID) (bool, error)
	MarkDeliveredForReceiver(conversationID uuid.UUID, receiverID string) (int, error)
	MarkRead(receiverID, fromUserID string, conversationID *uuid.UUID) (int, error)
}

// MessageRepository persists messages in BadgerDB.
//
// Primary records live under "msg:{conversation}:{timestamp_padded}:{uuid}"
// so a prefix scan yields a conversation's messages already sorted by
// (timestamp, id); the 19-digit zero padding makes nanosecond timestamps
// sort lexicographically and the uuid disambiguates same-nanosecond
// writes so pagination never skips or repeats a record.
//
// Two index keys point back at the primary record:
//
//	msgid:{uuid}                                  -> primary key
//	inbox:{receiver}:{timestamp_padded}:{uuid}    -> primary key
//
// The inbox index serves unread queries and session-resume replay without
// scanning every conversation the user participates in.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

func messageKey(conversationID uuid.UUID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), id))
}

func messageIDKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func inboxKey(receiverID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("inbox:%s:%019d:%s", receiverID, at.UnixNano(), id))
}

// Append durably inserts a message with delivered=false, seen=false and
// writes both index entries in the same transaction.
func (m *MessageRepository) Append(conversationID uuid.UUID, senderID, receiverID, content, lang, clientMessageID string) (domain.Message, error) {
	if !domain.ValidContent(content) {
		return domain.Message{}, chaterrors.ErrEmptyContent
	}
	message := domain.Message{
		ID:              uuid.New(),
		ConversationID:  conversationID,
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         content,
		Lang:            lang,
		Timestamp:       time.Now().UTC(),
		ClientMessageID: clientMessageID,
	}
	value, err := json.Marshal(message)
	if err != nil {
		return domain.Message{}, err
	}
	primary := messageKey(conversationID, message.Timestamp, message.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, value); err != nil {
			return err
		}
		if err := txn.Set(messageIDKey(message.ID), primary); err != nil {
			return err
		}
		return txn.Set(inboxKey(receiverID, message.Timestamp, message.ID), primary)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// Page returns up to limit messages of a conversation, chronologically
// ordered within the page, plus the cursor for the next (older) page.
// Internally it scans in (timestamp desc, id desc) order, bounded strictly
// below the supplied cursor, then reverses before returning. The next
// cursor is derived from the oldest row of the page; it is nil only when
// the page itself is empty, so callers must stop paging on an empty page
// rather than on a short one.
func (m *MessageRepository) Page(conversationID uuid.UUID, limit int, cursor *Cursor) ([]domain.Message, *Cursor, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversationID))
	var values [][]byte
	var last *Cursor

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Position past every possible timestamp, then walk back.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(cursor.keyPart())...)
		}

		it.Seek(seekKey)
		// A cursor seek lands on the row the previous page ended with;
		// skip it so the bound is a strict less-than. When that row is
		// gone the seek already sits on the next older key, which must
		// not be skipped.
		if cursor != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(values) == limit {
				break
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(values) == 0 {
		return nil, nil, nil
	}

	messages := make([]domain.Message, 0, len(values))
	for _, value := range values {
		var message domain.Message
		if err = json.Unmarshal(value, &message); err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}

	// Oldest row of the page before reversal.
	oldest := messages[len(messages)-1]
	last = &Cursor{UnixNano: oldest.Timestamp.UnixNano(), ID: oldest.ID}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, last, nil
}

// UnreadFor lists unseen messages addressed to userID, oldest first,
// optionally narrowed to one sender.
func (m *MessageRepository) UnreadFor(userID string, fromUserID string) ([]domain.Message, error) {
	return m.scanInbox(userID, nil, func(msg domain.Message) bool {
		if msg.Seen {
			return false
		}
		return fromUserID == "" || msg.SenderID == fromUserID
	})
}

// SinceForReceiver lists messages addressed to userID strictly after
// since, oldest first. Used for session resume after reconnect.
func (m *MessageRepository) SinceForReceiver(userID string, since time.Time) ([]domain.Message, error) {
	seek := []byte(fmt.Sprintf("inbox:%s:%019d", userID, since.UnixNano()+1))
	return m.scanInbox(userID, seek, func(domain.Message) bool { return true })
}

// scanInbox walks the inbox index forward (ascending timestamps) and
// resolves each entry to its primary record.
func (m *MessageRepository) scanInbox(userID string, seek []byte, keep func(domain.Message) bool) ([]domain.Message, error) {
	prefix := []byte("inbox:" + userID + ":")
	var messages []domain.Message

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		if seek == nil {
			seek = prefix
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			primary, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := getMessage(txn, primary)
			if err != nil {
				return err
			}
			if keep(message) {
				messages = append(messages, message)
			}
		}
		return nil
	})
	return messages, err
}

// Newest returns the most recent message of a conversation, or nil when
// the conversation has none.
func (m *MessageRepository) Newest(conversationID uuid.UUID) (*domain.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversationID))
	var newest *domain.Message

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		it.Seek(seekKey)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		value, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		var message domain.Message
		if err = json.Unmarshal(value, &message); err != nil {
			return err
		}
		newest = &message
		return nil
	})
	return newest, err
}

// GetByID resolves a message through the msgid index.
func (m *MessageRepository) GetByID(messageID uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIDKey(messageID))
		if err == badger.ErrKeyNotFound {
			return chaterrors.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		primary, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		message, err = getMessage(txn, primary)
		return err
	})
	return message, err
}

// MarkDelivered flips the delivered flag. The transition is one-way and
// idempotent: an already-delivered message reports false, not an error.
func (m *MessageRepository) MarkDelivered(messageID uuid.UUID) (bool, error) {
	return m.transition(messageID, func(msg *domain.Message) bool {
		if msg.Delivered {
			return false
		}
		msg.Delivered = true
		return true
	})
}

// MarkSeen flips the seen flag, same discipline as MarkDelivered. It does
// not require delivered to be set first; the protocol tolerates a seen
// ack arriving before the delivered record exists.
func (m *MessageRepository) MarkSeen(messageID uuid.UUID) (bool, error) {
	return m.transition(messageID, func(msg *domain.Message) bool {
		if msg.Seen {
			return false
		}
		msg.Seen = true
		return true
	})
}

func (m *MessageRepository) transition(messageID uuid.UUID, apply func(*domain.Message) bool) (bool, error) {
	changed := false
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIDKey(messageID))
		if err == badger.ErrKeyNotFound {
			return chaterrors.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		primary, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		message, err := getMessage(txn, primary)
		if err != nil {
			return err
		}
		if !apply(&message) {
			return nil
		}
		value, err := json.Marshal(message)
		if err != nil {
			return err
		}
		changed = true
		return txn.Set(primary, value)
	})
	return changed, err
}

// MarkDeliveredForReceiver bulk-marks every undelivered message of the
// conversation addressed to receiverID. Returns the count actually
// changed; zero is a normal outcome, not an error.
func (m *MessageRepository) MarkDeliveredForReceiver(conversationID uuid.UUID, receiverID string) (int, error) {
	return m.bulkTransition([]byte(fmt.Sprintf("msg:%s:", conversationID)), func(msg *domain.Message) bool {
		if msg.ReceiverID != receiverID || msg.Delivered {
			return false
		}
		msg.Delivered = true
		return true
	})
}

// MarkRead bulk-marks unseen messages addressed to receiverID, optionally
// narrowed by sender and/or conversation. Returns the count changed.
func (m *MessageRepository) MarkRead(receiverID, fromUserID string, conversationID *uuid.UUID) (int, error) {
	var prefix []byte
	if conversationID != nil {
		prefix = []byte(fmt.Sprintf("msg:%s:", *conversationID))
	} else {
		prefix = []byte("inbox:" + receiverID + ":")
	}
	return m.bulkTransition(prefix, func(msg *domain.Message) bool {
		if msg.ReceiverID != receiverID || msg.Seen {
			return false
		}
		if fromUserID != "" && msg.SenderID != fromUserID {
			return false
		}
		msg.Seen = true
		return true
	})
}

func (m *MessageRepository) bulkTransition(prefix []byte, apply func(*domain.Message) bool) (int, error) {
	count := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		type pending struct {
			key   []byte
			value []byte
		}
		var updates []pending

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			primary := item.KeyCopy(nil)
			var message domain.Message
			// Inbox entries hold a pointer to the primary record.
			if len(value) > 4 && string(value[:4]) == "msg:" {
				primary = value
				message, err = getMessage(txn, primary)
				if err != nil {
					return err
				}
			} else if err = json.Unmarshal(value, &message); err != nil {
				return err
			}
			if !apply(&message) {
				continue
			}
			updated, err := json.Marshal(message)
			if err != nil {
				return err
			}
			updates = append(updates, pending{key: primary, value: updated})
		}
		// Writes are deferred until the iterator is done with its snapshot.
		for _, u := range updates {
			if err := txn.Set(u.key, u.value); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func getMessage(txn *badger.Txn, primary []byte) (domain.Message, error) {
	item, err := txn.Get(primary)
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, chaterrors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	var message domain.Message
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &message)
	})
	return message, err
}
