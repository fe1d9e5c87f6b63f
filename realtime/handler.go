package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/auth"
	"chat-relay/bus"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	chaterrors "chat-relay/errors"
	"chat-relay/presence"
	"chat-relay/services"
)

// Application close codes, mirrored from the credential sentinels. The
// upgrade always succeeds first so the client can read the code.
const (
	CloseInvalidCredential = 4400
	CloseMissingCredential = 4401
	CloseIdentityMismatch  = 4403
)

// Handler upgrades and drives live chat sessions. Each session gets its
// own bus subscription when a distributed bus is configured; otherwise
// the registry alone covers local delivery.
type Handler struct {
	log      *slog.Logger
	chat     services.IChatService
	auth     *auth.Authenticator
	registry contract.IRegistry
	fanout   bus.Bus
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger, chat services.IChatService, authenticator *auth.Authenticator, registry contract.IRegistry, fanout bus.Bus) *Handler {
	return &Handler{
		log:      log,
		chat:     chat,
		auth:     authenticator,
		registry: registry,
		fanout:   fanout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws/chat/:user_id. The token travels in the "token"
// query parameter or a bearer Authorization header.
func (h *Handler) ServeWS(c *gin.Context) {
	userID := c.Param("user_id")

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user", userID, "err", err)
		return
	}

	if err = h.auth.Authorize(bearerToken(c), userID); err != nil {
		code := CloseInvalidCredential
		switch {
		case errors.Is(err, chaterrors.ErrMissingCredential):
			code = CloseMissingCredential
		case errors.Is(err, chaterrors.ErrIdentityMismatch):
			code = CloseIdentityMismatch
		}
		h.log.Info("Session rejected", "user", userID, "close_code", code)
		session := NewSession(userID, ws)
		session.Close(code, "unauthorized")
		return
	}

	session := NewSession(userID, ws)
	session.Start()
	h.registry.Register(userID, session)
	h.log.Info("Session opened", "user", userID, "session", session.ID, "sessions", h.registry.CountForUser(userID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer func() {
		cancel()
		h.registry.Unregister(userID, session)
		session.Close(websocket.CloseNormalClosure, "")
		h.log.Info("Session closed", "user", userID, "session", session.ID)
	}()

	if h.fanout.Enabled() {
		sub, subErr := h.fanout.Subscribe(ctx, bus.UserChannel(userID))
		if subErr != nil {
			h.log.Error("Fanout subscribe failed", "user", userID, "err", subErr)
			session.Close(websocket.CloseInternalServerErr, "fanout unavailable")
			return
		}
		defer sub.Close()
		go forward(sub, session)
	}

	h.chat.Heartbeat(ctx, userID)
	go h.heartbeatLoop(ctx, session, userID)

	if since := c.Query("resume_since"); since != "" {
		h.replay(session, userID, since)
	}

	h.readLoop(ctx, session, userID)
}

// forward pumps bus events into the session until either side ends.
func forward(sub bus.Subscription, session *Session) {
	for {
		select {
		case <-session.Done():
			return
		case payload, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := session.Send(payload); err != nil {
				return
			}
		}
	}
}

func (h *Handler) heartbeatLoop(ctx context.Context, session *Session, userID string) {
	ticker := time.NewTicker(presence.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case <-ticker.C:
			h.chat.Heartbeat(ctx, userID)
		}
	}
}

// replay pushes messages addressed to the user since the given instant,
// oldest first, so a reconnecting client catches up before live traffic.
func (h *Handler) replay(session *Session, userID, sinceRaw string) {
	sinceMillis, err := strconv.ParseInt(sinceRaw, 10, 64)
	if err != nil {
		h.sendFrame(session, event.NewError("invalid resume_since"))
		return
	}
	missed, err := h.chat.Resume(userID, sinceMillis)
	if err != nil {
		h.log.Error("Resume replay failed", "user", userID, "err", err)
		return
	}
	for _, msg := range missed {
		frame := event.NewMessage(msg, domain.Ack{
			MessageID:       msg.ID,
			ConversationID:  msg.ConversationID,
			ClientMessageID: msg.ClientMessageID,
		})
		h.sendFrame(session, frame)
	}
	if len(missed) > 0 {
		h.log.Info("Replayed missed messages", "user", userID, "count", len(missed))
	}
}

func (h *Handler) readLoop(ctx context.Context, session *Session, userID string) {
	for {
		_, raw, err := session.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Session read failed", "user", userID, "err", err)
			}
			return
		}

		var frame event.Inbound
		if err = json.Unmarshal(raw, &frame); err != nil {
			h.sendFrame(session, event.NewError("malformed frame"))
			continue
		}
		h.dispatch(ctx, session, userID, frame)
	}
}

// dispatch routes one inbound frame. Malformed frames answer with an
// error frame and leave the session open.
func (h *Handler) dispatch(ctx context.Context, session *Session, userID string, frame event.Inbound) {
	switch frame.Type {
	case "", event.TypeMessage:
		if frame.To == "" {
			h.sendFrame(session, event.NewError("missing recipient"))
			return
		}
		ack, err := h.chat.Send(ctx, domain.SendCommand{
			SenderID:        userID,
			ReceiverID:      frame.To,
			Content:         frame.Content,
			ClientMessageID: frame.ClientMessageID,
		})
		if err != nil {
			if errors.Is(err, chaterrors.ErrEmptyContent) {
				h.sendFrame(session, event.NewError("empty content"))
				return
			}
			h.log.Error("Send failed", "user", userID, "err", err)
			h.sendFrame(session, event.NewError("send failed"))
			return
		}
		h.sendFrame(session, event.NewAck(ack))

	case event.TypeTypingStart, event.TypeTypingStop:
		if frame.To == "" {
			h.sendFrame(session, event.NewError("missing recipient"))
			return
		}
		h.chat.Typing(ctx, frame.Type, userID, frame.To)

	case event.TypeDelivered, event.TypeSeen:
		cmd, ok := h.markCommand(session, userID, frame)
		if !ok {
			return
		}
		var err error
		if frame.Type == event.TypeDelivered {
			_, err = h.chat.MarkDelivered(ctx, cmd)
		} else {
			_, err = h.chat.MarkSeen(ctx, cmd)
		}
		if err != nil {
			h.log.Error("Mark failed", "user", userID, "type", frame.Type, "err", err)
		}

	default:
		h.sendFrame(session, event.NewError("unknown frame type"))
	}
}

func (h *Handler) markCommand(session *Session, userID string, frame event.Inbound) (domain.MarkCommand, bool) {
	messageID, err := uuid.Parse(frame.MessageID)
	if err != nil {
		h.sendFrame(session, event.NewError("invalid message_id"))
		return domain.MarkCommand{}, false
	}
	cmd := domain.MarkCommand{MessageID: messageID, From: userID, To: frame.To}
	if frame.ConversationID != "" {
		if cmd.ConversationID, err = uuid.Parse(frame.ConversationID); err != nil {
			h.sendFrame(session, event.NewError("invalid conversation_id"))
			return domain.MarkCommand{}, false
		}
	}
	return cmd, true
}

func (h *Handler) sendFrame(session *Session, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("Frame marshal failed", "err", err)
		return
	}
	if err = session.Send(data); err != nil {
		h.log.Debug("Frame dropped", "session", session.ID, "err", err)
	}
}

func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return ""
}
