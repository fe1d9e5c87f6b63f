// Package httpapi is the REST read side: history, conversation listing,
// unread queries, bulk read marks, device registration and presence. The
// live write path stays on the websocket.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"chat-relay/auth"
	"chat-relay/domain"
	chaterrors "chat-relay/errors"
	"chat-relay/services"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type Handler struct {
	log      *slog.Logger
	chat     services.IChatService
	validate *validator.Validate
}

func NewHandler(log *slog.Logger, chat services.IChatService) *Handler {
	return &Handler{
		log:      log,
		chat:     chat,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the authenticated API under the given group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup, authenticator *auth.Authenticator) {
	group.Use(BearerAuth(authenticator))

	group.GET("/conversations", h.listConversations)
	group.GET("/conversations/:id/messages", h.listMessages)
	group.GET("/conversations/:id/messages/search", h.searchMessages)
	group.GET("/messages/unread", h.listUnread)
	group.POST("/messages/mark_read", h.markRead)
	group.POST("/devices/register", h.registerDevice)
	group.GET("/presence/:user_id", h.getPresence)
}

func (h *Handler) listConversations(c *gin.Context) {
	userID := authenticatedUser(c)
	conversations, next, err := h.chat.Conversations(userID, pageLimit(c), c.Query("cursor"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations, "next_cursor": next})
}

func (h *Handler) listMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	messages, next, err := h.chat.History(c.Request.Context(), authenticatedUser(c), conversationID, pageLimit(c), c.Query("cursor"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "next_cursor": next})
}

func (h *Handler) searchMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	terms := c.Query("q")
	if terms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	messages, total, err := h.chat.SearchMessages(c.Request.Context(), authenticatedUser(c), conversationID, terms, pageLimit(c), offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "total": total})
}

func (h *Handler) listUnread(c *gin.Context) {
	messages, err := h.chat.Unread(authenticatedUser(c), c.Query("from"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

type markReadRequest struct {
	From           string `json:"from" validate:"required"`
	ConversationID string `json:"conversation_id" validate:"omitempty,uuid4"`
}

func (h *Handler) markRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var conversationID *uuid.UUID
	if req.ConversationID != "" {
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
			return
		}
		conversationID = &id
	}
	updated, err := h.chat.MarkRead(authenticatedUser(c), req.From, conversationID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

type registerDeviceRequest struct {
	Platform string `json:"platform" validate:"required,oneof=fcm webpush"`
	Token    string `json:"token" validate:"required,min=8"`
}

func (h *Handler) registerDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	device, err := h.chat.RegisterDevice(authenticatedUser(c), domain.Platform(req.Platform), req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *Handler) getPresence(c *gin.Context) {
	snapshot := h.chat.Presence(c.Request.Context(), c.Param("user_id"))
	c.JSON(http.StatusOK, snapshot)
}

// fail maps domain sentinels onto HTTP statuses; anything unmapped is a
// logged 500 with no internals leaked.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chaterrors.ErrConversationNotFound), errors.Is(err, chaterrors.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, chaterrors.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("Request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pageLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
