//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/bus"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	chaterrors "chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/presence"
	"chat-relay/push"
	"chat-relay/repositories"
)

type IChatService interface {
	Send(ctx context.Context, cmd domain.SendCommand) (domain.Ack, error)
	Typing(ctx context.Context, typingType, from, to string)
	MarkDelivered(ctx context.Context, cmd domain.MarkCommand) (bool, error)
	MarkSeen(ctx context.Context, cmd domain.MarkCommand) (bool, error)
	History(ctx context.Context, userID string, conversationID uuid.UUID, limit int, cursor string) ([]domain.Message, string, error)
	Unread(userID, fromUserID string) ([]domain.Message, error)
	MarkRead(receiverID, fromUserID string, conversationID *uuid.UUID) (int, error)
	Conversations(userID string, limit int, cursor string) ([]domain.Conversation, string, error)
	Resume(userID string, sinceMillis int64) ([]domain.Message, error)
	SearchMessages(ctx context.Context, userID string, conversationID uuid.UUID, terms string, limit, offset int) ([]domain.Message, uint64, error)
	RegisterDevice(userID string, platform domain.Platform, token string) (domain.Device, error)
	Presence(ctx context.Context, userID string) domain.PresenceSnapshot
	Heartbeat(ctx context.Context, userID string)
}

// ChatService is the coordinator: it validates input, writes through the
// message store and conversation index, fans events out, and decides
// offline push. Everything after the durable write is best effort: the
// send succeeds once persisted, whatever the bus, the delivered-mark,
// the push provider or the search index think about it.
type ChatService struct {
	log           *slog.Logger
	messages      repositories.IMessageRepository
	conversations repositories.IConversationRepository
	devices       repositories.IDeviceRepository
	search        repositories.ISearchRepository
	fanoutBus     bus.Bus
	registry      contract.IRegistry
	tracker       presence.Tracker
	pusher        *push.Dispatcher
	moderator     *moderation.Moderator
}

func NewChatService(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	conversations repositories.IConversationRepository,
	devices repositories.IDeviceRepository,
	search repositories.ISearchRepository,
	fanoutBus bus.Bus,
	registry contract.IRegistry,
	tracker presence.Tracker,
	pusher *push.Dispatcher,
	moderator *moderation.Moderator,
) *ChatService {
	return &ChatService{
		log:           log,
		messages:      messages,
		conversations: conversations,
		devices:       devices,
		search:        search,
		fanoutBus:     fanoutBus,
		registry:      registry,
		tracker:       tracker,
		pusher:        pusher,
		moderator:     moderator,
	}
}

// Send runs the full pipeline for one message:
// validate, moderate, persist, ack, fan out, then the advisory tail
// (delivered-mark, offline push, search indexing).
//
// The persist step is three separate writes, not one transaction. A crash
// in between leaves a message without an updated conversation preview;
// that window is accepted and repaired lazily by the reconciler.
func (s *ChatService) Send(ctx context.Context, cmd domain.SendCommand) (domain.Ack, error) {
	if !domain.ValidContent(cmd.Content) {
		return domain.Ack{}, chaterrors.ErrEmptyContent
	}
	content := strings.TrimSpace(cmd.Content)

	censored, foundWords := s.moderator.Censor(content)
	lang := moderation.DetectLang(content)
	if len(foundWords) > 0 {
		s.log.Info("Message content censored",
			"sender", cmd.SenderID,
			"lang", lang,
			"words", len(foundWords))
	}

	convo, err := s.conversations.GetOrCreateOneToOne(cmd.SenderID, cmd.ReceiverID)
	if err != nil {
		return domain.Ack{}, err
	}
	message, err := s.messages.Append(convo.ID, cmd.SenderID, cmd.ReceiverID, censored, lang, cmd.ClientMessageID)
	if err != nil {
		return domain.Ack{}, err
	}
	if err = s.conversations.RecordNewMessage(convo.ID, censored, cmd.ReceiverID, message.Timestamp); err != nil {
		return domain.Ack{}, err
	}

	ack := domain.Ack{
		MessageID:       message.ID,
		ConversationID:  convo.ID,
		ClientMessageID: cmd.ClientMessageID,
	}

	s.fanout(ctx, cmd.ReceiverID, event.NewMessage(message, ack))

	// Advisory bookkeeping, not a delivery guarantee.
	if _, err = s.messages.MarkDeliveredForReceiver(convo.ID, cmd.ReceiverID); err != nil {
		s.log.Warn("Best-effort delivered-mark failed", "conversation", convo.ID, "err", err)
	}

	// Unknown presence means not provably online, which means push.
	if !s.tracker.IsOnline(ctx, cmd.ReceiverID) {
		data := map[string]string{
			"conversation_id": convo.ID.String(),
			"message_id":      message.ID.String(),
			"from":            cmd.SenderID,
		}
		if err = s.pusher.Send(ctx, cmd.ReceiverID, "New message", domain.PushBody(censored), data); err != nil {
			s.log.Warn("Offline push failed", "receiver", cmd.ReceiverID, "err", err)
		}
	}

	if err = s.search.Index(message.ID, convo.ID, censored); err != nil {
		s.log.Warn("Search indexing failed", "message", message.ID, "err", err)
	}

	return ack, nil
}

// Typing fans a typing indicator straight out; nothing is persisted.
func (s *ChatService) Typing(ctx context.Context, typingType, from, to string) {
	s.fanout(ctx, to, event.Typing{Type: typingType, From: from})
}

// MarkDelivered flips the delivered flag and, when something actually
// changed, reports the receipt to the target user's channel. An unknown
// message id is a no-op, not an error: acks may race a resume replay.
func (s *ChatService) MarkDelivered(ctx context.Context, cmd domain.MarkCommand) (bool, error) {
	return s.mark(ctx, event.TypeDelivered, cmd, s.messages.MarkDelivered)
}

// MarkSeen is MarkDelivered's twin for the seen flag. Seen does not imply
// delivered: the flags are independent and a client may report them in
// either order.
func (s *ChatService) MarkSeen(ctx context.Context, cmd domain.MarkCommand) (bool, error) {
	return s.mark(ctx, event.TypeSeen, cmd, s.messages.MarkSeen)
}

func (s *ChatService) mark(ctx context.Context, receiptType string, cmd domain.MarkCommand, transition func(uuid.UUID) (bool, error)) (bool, error) {
	changed, err := transition(cmd.MessageID)
	if errors.Is(err, chaterrors.ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if changed {
		target := cmd.To
		if target == "" {
			// The acking client knows the message id, not necessarily the
			// peer; the stored record does.
			if msg, lookupErr := s.messages.GetByID(cmd.MessageID); lookupErr == nil {
				target = msg.SenderID
			}
		}
		receipt := event.Receipt{
			Type:      receiptType,
			MessageID: cmd.MessageID.String(),
			From:      cmd.From,
		}
		if cmd.ConversationID != uuid.Nil {
			receipt.ConversationID = cmd.ConversationID.String()
		}
		if target != "" {
			s.fanout(ctx, target, receipt)
		}
	}
	return changed, nil
}

// History pages a conversation's messages, newest page first but each
// page chronologically ordered. A malformed cursor degrades to the first
// page. Non-participants get not-found, never a hint that the
// conversation exists.
func (s *ChatService) History(_ context.Context, userID string, conversationID uuid.UUID, limit int, cursor string) ([]domain.Message, string, error) {
	if err := s.authorizeParticipant(userID, conversationID); err != nil {
		return nil, "", err
	}
	messages, next, err := s.messages.Page(conversationID, limit, repositories.DecodeCursor(cursor))
	if err != nil {
		return nil, "", err
	}
	return messages, repositories.EncodeCursor(next), nil
}

func (s *ChatService) Unread(userID, fromUserID string) ([]domain.Message, error) {
	return s.messages.UnreadFor(userID, fromUserID)
}

// MarkRead bulk-marks messages seen and, when scoped to a conversation,
// zeroes the caller's unread counter there.
func (s *ChatService) MarkRead(receiverID, fromUserID string, conversationID *uuid.UUID) (int, error) {
	count, err := s.messages.MarkRead(receiverID, fromUserID, conversationID)
	if err != nil {
		return 0, err
	}
	if conversationID != nil {
		if err = s.conversations.ResetUnread(*conversationID, receiverID); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *ChatService) Conversations(userID string, limit int, cursor string) ([]domain.Conversation, string, error) {
	conversations, next, err := s.conversations.PageForUser(userID, limit, repositories.DecodeCursor(cursor))
	if err != nil {
		return nil, "", err
	}
	return conversations, repositories.EncodeCursor(next), nil
}

// Resume lists messages addressed to the user strictly after the given
// instant, oldest first, for replay on reconnect.
func (s *ChatService) Resume(userID string, sinceMillis int64) ([]domain.Message, error) {
	return s.messages.SinceForReceiver(userID, time.UnixMilli(sinceMillis))
}

// SearchMessages resolves full-text hits back to stored messages. Hits
// whose record has vanished are skipped rather than failing the query.
func (s *ChatService) SearchMessages(ctx context.Context, userID string, conversationID uuid.UUID, terms string, limit, offset int) ([]domain.Message, uint64, error) {
	if err := s.authorizeParticipant(userID, conversationID); err != nil {
		return nil, 0, err
	}
	ids, total, err := s.search.Search(ctx, conversationID, terms, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	messages := lo.FilterMap(ids, func(id uuid.UUID, _ int) (domain.Message, bool) {
		message, err := s.messages.GetByID(id)
		return message, err == nil
	})
	return messages, total, nil
}

func (s *ChatService) RegisterDevice(userID string, platform domain.Platform, token string) (domain.Device, error) {
	return s.devices.Register(userID, platform, token)
}

func (s *ChatService) Presence(ctx context.Context, userID string) domain.PresenceSnapshot {
	online, lastSeen := s.tracker.Snapshot(ctx, userID)
	return domain.PresenceSnapshot{UserID: userID, Online: online, LastSeen: lastSeen}
}

// Heartbeat refreshes the caller's liveness. Best effort: a failing
// presence backend must not disturb the session that beats.
func (s *ChatService) Heartbeat(ctx context.Context, userID string) {
	if err := s.tracker.Heartbeat(ctx, userID); err != nil {
		s.log.Debug("Presence heartbeat failed", "user", userID, "err", err)
	}
}

func (s *ChatService) authorizeParticipant(userID string, conversationID uuid.UUID) error {
	convo, err := s.conversations.Get(conversationID)
	if err != nil {
		return err
	}
	if !convo.Has(userID) {
		return chaterrors.ErrConversationNotFound
	}
	return nil
}

// fanout publishes one frame on the user's channel. With a distributed
// bus, local sessions receive through their own subscriptions like
// everyone else; without one, delivery degrades to the local registry.
// Transient bus failures are logged and swallowed.
func (s *ChatService) fanout(ctx context.Context, userID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("Fanout payload marshal failed", "user", userID, "err", err)
		return
	}
	if s.fanoutBus.Enabled() {
		if err = s.fanoutBus.Publish(ctx, bus.UserChannel(userID), data); err != nil {
			s.log.Warn("Fanout publish failed", "user", userID, "err", err)
		}
		return
	}
	s.registry.SendToUser(userID, data)
}
