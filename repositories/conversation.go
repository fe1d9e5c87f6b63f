//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
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

type IConversationRepository interface {
	GetOrCreateOneToOne(userA, userB string) (domain.Conversation, error)
	Get(conversationID uuid.UUID) (domain.Conversation, error)
	RecordNewMessage(conversationID uuid.UUID, preview, receiverID string, at time.Time) error
	ResetUnread(conversationID uuid.UUID, userID string) error
	PageForUser(userID string, limit int, cursor *Cursor) ([]domain.Conversation, *Cursor, error)
	Recompute(conversationID uuid.UUID, newest domain.Message) (bool, error)
	Walk(fn func(domain.Conversation) error) error
}

// ConversationRepository maintains the single conversation per unordered
// participant pair.
//
// Layout:
//
//	convo:{uuid}                                   -> record
//	pair:{a}|{b}                                   -> uuid (a,b sorted)
//	uconvo:{user}:{last_message_padded}:{uuid}     -> uuid
//
// The uconvo keys are a maintained activity index, one per participant,
// rewritten whenever last_message_at moves, so listing a user's
// conversations newest-activity-first is the same reverse prefix scan the
// message store uses.
type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, log: log}
}

func conversationKey(id uuid.UUID) []byte {
	return []byte("convo:" + id.String())
}

func pairKey(pair [2]string) []byte {
	return []byte("pair:" + pair[0] + "|" + pair[1])
}

func activityKey(userID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("uconvo:%s:%019d:%s", userID, at.UnixNano(), id))
}

// GetOrCreateOneToOne canonicalizes the pair and returns its conversation,
// creating it on first contact. Lookup and insert run inside one badger
// update transaction, so two concurrent first sends between the same pair
// converge on a single record instead of racing into duplicates.
func (c *ConversationRepository) GetOrCreateOneToOne(userA, userB string) (domain.Conversation, error) {
	pair := domain.CanonicalPair(userA, userB)
	var convo domain.Conversation

	err := c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(pair))
		if err == nil {
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			parsed, err := uuid.ParseBytes(id)
			if err != nil {
				return err
			}
			convo, err = getConversation(txn, parsed)
			return err
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		convo = domain.Conversation{
			ID:            uuid.New(),
			Participants:  pair,
			LastMessageAt: time.Now().UTC(),
			UnreadCounters: map[string]int{
				pair[0]: 0,
				pair[1]: 0,
			},
		}
		value, err := json.Marshal(convo)
		if err != nil {
			return err
		}
		if err = txn.Set(conversationKey(convo.ID), value); err != nil {
			return err
		}
		if err = txn.Set(pairKey(pair), []byte(convo.ID.String())); err != nil {
			return err
		}
		for _, participant := range pair {
			if err = txn.Set(activityKey(participant, convo.LastMessageAt, convo.ID), []byte(convo.ID.String())); err != nil {
				return err
			}
		}
		return nil
	})
	return convo, err
}

func (c *ConversationRepository) Get(conversationID uuid.UUID) (domain.Conversation, error) {
	var convo domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		convo, err = getConversation(txn, conversationID)
		return err
	})
	return convo, err
}

// RecordNewMessage refreshes the preview and activity timestamp and bumps
// the receiver's unread counter by exactly one. The sender's counter is
// untouched. Both participants' activity index keys move with the record.
func (c *ConversationRepository) RecordNewMessage(conversationID uuid.UUID, preview, receiverID string, at time.Time) error {
	return c.mutate(conversationID, func(convo *domain.Conversation) error {
		convo.LastMessagePreview = domain.Preview(preview)
		convo.LastMessageAt = at
		convo.UnreadCounters[receiverID]++
		return nil
	})
}

// ResetUnread zeroes one participant's counter and leaves the peer alone.
func (c *ConversationRepository) ResetUnread(conversationID uuid.UUID, userID string) error {
	return c.mutate(conversationID, func(convo *domain.Conversation) error {
		convo.UnreadCounters[userID] = 0
		return nil
	})
}

// Recompute realigns preview and activity timestamp with the newest stored
// message. This is the repair path for the non-atomic persist sequence: a
// crash between the message append and RecordNewMessage leaves the record
// stale but recoverable. Returns whether anything changed.
func (c *ConversationRepository) Recompute(conversationID uuid.UUID, newest domain.Message) (bool, error) {
	changed := false
	err := c.mutate(conversationID, func(convo *domain.Conversation) error {
		if !newest.Timestamp.After(convo.LastMessageAt) {
			return nil
		}
		convo.LastMessagePreview = domain.Preview(newest.Content)
		convo.LastMessageAt = newest.Timestamp
		changed = true
		return nil
	})
	return changed, err
}

// mutate loads, applies, and rewrites one conversation inside a single
// transaction. When apply moves last_message_at, the superseded activity
// index keys are deleted and fresh ones written for both participants.
func (c *ConversationRepository) mutate(conversationID uuid.UUID, apply func(*domain.Conversation) error) error {
	return c.db.Update(func(txn *badger.Txn) error {
		convo, err := getConversation(txn, conversationID)
		if err != nil {
			return err
		}
		before := convo.LastMessageAt
		if err = apply(&convo); err != nil {
			return err
		}
		value, err := json.Marshal(convo)
		if err != nil {
			return err
		}
		if err = txn.Set(conversationKey(convo.ID), value); err != nil {
			return err
		}
		if convo.LastMessageAt.Equal(before) {
			return nil
		}
		for _, participant := range convo.Participants {
			if err = txn.Delete(activityKey(participant, before, convo.ID)); err != nil {
				return err
			}
			if err = txn.Set(activityKey(participant, convo.LastMessageAt, convo.ID), []byte(convo.ID.String())); err != nil {
				return err
			}
		}
		return nil
	})
}

// PageForUser lists a user's conversations ordered by
// (last_message_at desc, id desc) with the same cursor discipline as the
// message store: strict upper bound, next cursor from the last row, nil
// cursor only on an empty page.
func (c *ConversationRepository) PageForUser(userID string, limit int, cursor *Cursor) ([]domain.Conversation, *Cursor, error) {
	prefix := []byte("uconvo:" + userID + ":")
	var ids []uuid.UUID
	var conversations []domain.Conversation

	err := c.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(cursor.keyPart())...)
		}

		it.Seek(seekKey)
		// Skip the previous page's boundary row only when its index key
		// still exists; mutate moves these keys on every new message, so
		// a vanished boundary means the seek already landed on the next
		// older conversation.
		if cursor != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(ids) == limit {
				break
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			id, err := uuid.ParseBytes(raw)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		for _, id := range ids {
			convo, err := getConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, convo)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(conversations) == 0 {
		return nil, nil, nil
	}
	last := conversations[len(conversations)-1]
	next := &Cursor{UnixNano: last.LastMessageAt.UnixNano(), ID: last.ID}
	return conversations, next, nil
}

// Walk visits every conversation. Used by the reconciler and the
// inspection tool; not a hot path.
func (c *ConversationRepository) Walk(fn func(domain.Conversation) error) error {
	prefix := []byte("convo:")
	return c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var convo domain.Conversation
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &convo)
			})
			if err != nil {
				return err
			}
			if err = fn(convo); err != nil {
				return err
			}
		}
		return nil
	})
}

func getConversation(txn *badger.Txn, id uuid.UUID) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, chaterrors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var convo domain.Conversation
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &convo)
	})
	return convo, err
}
