package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/database"
	"github.com/stretchr/testify/require"

	"chat-relay/auth"
	"chat-relay/bus"
	"chat-relay/domain"
	"chat-relay/moderation"
	"chat-relay/presence"
	"chat-relay/push"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"
)

type apiFixture struct {
	router        *gin.Engine
	authenticator *auth.Authenticator
	chat          services.IChatService
	tracker       *presence.LocalTracker
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	req := require.New(t)
	_, log, badgerDB, blugeWriter, err := database.SetupBenchmark(t.TempDir())
	req.NoError(err)
	t.Cleanup(func() { database.CleanupDB(badgerDB, blugeWriter) })

	messages := repositories.NewMessageRepository(badgerDB, log)
	convos := repositories.NewConversationRepository(badgerDB, log)
	devices := repositories.NewDeviceRepository(badgerDB)
	search := repositories.NewSearchRepository(blugeWriter, log)
	tracker := presence.NewLocalTracker()
	moderator, err := moderation.NewModerator([]string{"spam"}, '*')
	req.NoError(err)

	chat := services.NewChatService(
		log,
		messages, convos, devices, search,
		bus.NewNoopBus(), runtime.NewRegistry(log), tracker,
		push.NewDispatcher(devices, push.NoopNotifier{}, log),
		&moderator,
	)

	authenticator := auth.NewAuthenticator("test-secret")
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(log, chat).RegisterRoutes(router.Group("/api/v1"), authenticator)

	return &apiFixture{router: router, authenticator: authenticator, chat: chat, tracker: tracker}
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if userID != "" {
		token, err := f.authenticator.GenerateToken(userID, time.Hour)
		require.NoError(t, err)
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, request)
	return recorder
}

func (f *apiFixture) send(t *testing.T, from, to, content string) domain.Ack {
	t.Helper()
	ack, err := f.chat.Send(context.Background(), domain.SendCommand{SenderID: from, ReceiverID: to, Content: content})
	require.NoError(t, err)
	return ack
}

func TestAPI_Unauthorized(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	response := f.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	req.Equal(http.StatusUnauthorized, response.Code)
}

func TestAPI_ListConversations(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	f.send(t, "alice", "bob", "hello bob")
	time.Sleep(2 * time.Millisecond)
	f.send(t, "alice", "carol", "hello carol")

	response := f.do(t, http.MethodGet, "/api/v1/conversations", "alice", nil)
	req.Equal(http.StatusOK, response.Code)

	var body struct {
		Conversations []domain.Conversation `json:"conversations"`
		NextCursor    string                `json:"next_cursor"`
	}
	req.NoError(json.Unmarshal(response.Body.Bytes(), &body))
	req.Len(body.Conversations, 2)
	// Newest activity first
	req.Equal([2]string{"alice", "carol"}, body.Conversations[0].Participants)
}

func TestAPI_ListMessages_MembershipEnforced(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	ack := f.send(t, "alice", "bob", "hello")
	path := "/api/v1/conversations/" + ack.ConversationID.String() + "/messages"

	response := f.do(t, http.MethodGet, path, "alice", nil)
	req.Equal(http.StatusOK, response.Code)

	var body struct {
		Messages []domain.Message `json:"messages"`
	}
	req.NoError(json.Unmarshal(response.Body.Bytes(), &body))
	req.Len(body.Messages, 1)
	req.Equal("hello", body.Messages[0].Content)

	// Outsiders see a 404, not a 403
	response = f.do(t, http.MethodGet, path, "mallory", nil)
	req.Equal(http.StatusNotFound, response.Code)

	// A malformed id is a 400
	response = f.do(t, http.MethodGet, "/api/v1/conversations/not-a-uuid/messages", "alice", nil)
	req.Equal(http.StatusBadRequest, response.Code)
}

func TestAPI_UnreadAndMarkRead(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	ack := f.send(t, "alice", "bob", "unread one")
	f.send(t, "alice", "bob", "unread two")

	response := f.do(t, http.MethodGet, "/api/v1/messages/unread", "bob", nil)
	req.Equal(http.StatusOK, response.Code)
	var unread struct {
		Count int `json:"count"`
	}
	req.NoError(json.Unmarshal(response.Body.Bytes(), &unread))
	req.Equal(2, unread.Count)

	response = f.do(t, http.MethodPost, "/api/v1/messages/mark_read", "bob", gin.H{
		"from":            "alice",
		"conversation_id": ack.ConversationID.String(),
	})
	req.Equal(http.StatusOK, response.Code)
	var marked struct {
		Updated int `json:"updated"`
	}
	req.NoError(json.Unmarshal(response.Body.Bytes(), &marked))
	req.Equal(2, marked.Updated)

	response = f.do(t, http.MethodGet, "/api/v1/messages/unread", "bob", nil)
	req.Equal(http.StatusOK, response.Code)
	req.NoError(json.Unmarshal(response.Body.Bytes(), &unread))
	req.Zero(unread.Count)
}

func TestAPI_MarkRead_MissingFrom_Rejected(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	response := f.do(t, http.MethodPost, "/api/v1/messages/mark_read", "bob", gin.H{})
	req.Equal(http.StatusBadRequest, response.Code)
}

func TestAPI_RegisterDevice_Validation(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	response := f.do(t, http.MethodPost, "/api/v1/devices/register", "alice", gin.H{
		"platform": "fcm",
		"token":    "device-token-001",
	})
	req.Equal(http.StatusCreated, response.Code)

	var device domain.Device
	req.NoError(json.Unmarshal(response.Body.Bytes(), &device))
	req.Equal("alice", device.UserID)

	// Unknown platform fails validation
	response = f.do(t, http.MethodPost, "/api/v1/devices/register", "alice", gin.H{
		"platform": "carrier-pigeon",
		"token":    "device-token-001",
	})
	req.Equal(http.StatusBadRequest, response.Code)
}

func TestAPI_Presence(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	response := f.do(t, http.MethodGet, "/api/v1/presence/bob", "alice", nil)
	req.Equal(http.StatusOK, response.Code)
	var snapshot domain.PresenceSnapshot
	req.NoError(json.Unmarshal(response.Body.Bytes(), &snapshot))
	req.False(snapshot.Online)

	req.NoError(f.tracker.Heartbeat(context.Background(), "bob"))

	response = f.do(t, http.MethodGet, "/api/v1/presence/bob", "alice", nil)
	req.NoError(json.Unmarshal(response.Body.Bytes(), &snapshot))
	req.True(snapshot.Online)
	req.NotNil(snapshot.LastSeen)
}

func TestAPI_Search(t *testing.T) {
	req := require.New(t)
	f := setupAPI(t)

	ack := f.send(t, "alice", "bob", "the deployment finished cleanly")
	f.send(t, "alice", "bob", "lunch?")
	time.Sleep(50 * time.Millisecond)

	path := "/api/v1/conversations/" + ack.ConversationID.String() + "/messages/search?q=deployment"
	response := f.do(t, http.MethodGet, path, "alice", nil)
	req.Equal(http.StatusOK, response.Code)

	var body struct {
		Messages []domain.Message `json:"messages"`
		Total    uint64           `json:"total"`
	}
	req.NoError(json.Unmarshal(response.Body.Bytes(), &body))
	req.Equal(uint64(1), body.Total)
	req.Len(body.Messages, 1)
	req.Equal(ack.MessageID, body.Messages[0].ID)

	// A missing query is rejected up front
	response = f.do(t, http.MethodGet, "/api/v1/conversations/"+ack.ConversationID.String()+"/messages/search", "alice", nil)
	req.Equal(http.StatusBadRequest, response.Code)
}
