package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/relay/database/dbtest"
	"github.com/akinalp/relay/handlers"
	"github.com/akinalp/relay/kv"
	"github.com/akinalp/relay/middleware"
	"github.com/akinalp/relay/pkg/crypto"
	"github.com/akinalp/relay/pkg/ratelimit"
	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/services"
	"github.com/akinalp/relay/ws/wstest"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type limits struct {
	login, send, typing int
}

type testServer struct {
	handler http.Handler
	hub     *wstest.Recorder
	closeDB func() error
}

type counter int

func (c counter) ConnectionCount() int { return int(c) }

// newTestServer, gerçek SQLite + in-memory kv üzerinde tüm HTTP zincirini kurar.
func newTestServer(t *testing.T, l limits) *testServer {
	t.Helper()

	db := dbtest.New(t)
	codec, err := crypto.NewAESCodec(testKey)
	require.NoError(t, err)

	logger := zap.NewNop()
	users := repository.NewSQLiteUserRepo(db.Conn)
	sessions := repository.NewSQLiteSessionRepo(db.Conn)
	chats := repository.NewSQLiteChatRepo(db.Conn)
	messages := repository.NewSQLiteMessageRepo(db.Conn, codec)

	presenceKV := kv.NewMemoryPresence()
	typingKV := kv.NewMemoryTyping()
	cache := kv.NewMemorySummaryCache()
	hub := &wstest.Recorder{}

	loginLimiter := ratelimit.NewPerWindow[string](l.login, time.Minute)
	sendLimiter := ratelimit.NewPerWindow[int64](l.send, time.Minute)
	typingLimiter := ratelimit.NewPerWindow[int64](l.typing, time.Minute)
	lastSeen := middleware.NewLastSeenMiddleware(users, time.Minute, logger)

	t.Cleanup(func() {
		presenceKV.Close()
		typingKV.Close()
		cache.Close()
		loginLimiter.Close()
		sendLimiter.Close()
		typingLimiter.Close()
		lastSeen.Close()
	})

	authSvc := services.NewAuthService(users, sessions, "test-secret", 15, 7, logger)
	presenceSvc := services.NewPresenceService(users, chats, presenceKV, typingKV, hub, 0, logger)
	summarySvc := services.NewSummaryService(chats, messages, cache, presenceSvc, 0, logger)
	chatSvc := services.NewChatService(db.Conn, chats, users, messages, summarySvc, presenceSvc, hub, hub, logger)
	messageSvc := services.NewMessageService(db.Conn, codec, chats, messages, summarySvc, hub, logger)
	userSvc := services.NewUserService(users, chats, summarySvc, logger)

	authH := handlers.NewAuthHandler(authSvc, loginLimiter)
	chatH := handlers.NewChatHandler(chatSvc)
	messageH := handlers.NewMessageHandler(messageSvc, sendLimiter)
	userH := handlers.NewUserHandler(userSvc)
	presenceH := handlers.NewPresenceHandler(presenceSvc, typingLimiter)
	healthH := handlers.NewHealthHandler(db.Conn, counter(3))

	authMw := middleware.NewAuthMiddleware(authSvc, users)
	public := func(h http.HandlerFunc) http.Handler { return middleware.SocketID(h) }
	auth := func(h http.HandlerFunc) http.Handler {
		return middleware.SocketID(authMw.Require(lastSeen.Touch(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/auth/register", public(authH.Register))
	mux.Handle("POST /api/auth/login", public(authH.Login))
	mux.Handle("POST /api/auth/refresh", public(authH.Refresh))
	mux.Handle("POST /api/auth/logout", auth(authH.Logout))
	mux.Handle("GET /api/auth/me", auth(authH.Me))
	mux.Handle("POST /api/auth/ping", auth(presenceH.Ping))
	mux.Handle("POST /api/chats/private", auth(chatH.CreatePrivate))
	mux.Handle("POST /api/chats/group", auth(chatH.CreateGroup))
	mux.Handle("GET /api/chats", auth(chatH.List))
	mux.Handle("GET /api/chats/{id}", auth(chatH.Get))
	mux.Handle("DELETE /api/chats/{id}", auth(chatH.Delete))
	mux.Handle("POST /api/chats/{id}/users", auth(chatH.AddUser))
	mux.Handle("POST /api/chats/{id}/read", auth(chatH.MarkRead))
	mux.Handle("POST /api/chats/{id}/typing", auth(presenceH.Typing))
	mux.Handle("GET /api/chats/{id}/messages", auth(messageH.List))
	mux.Handle("POST /api/chats/{id}/messages", auth(messageH.Send))
	mux.Handle("GET /api/chats/{id}/messages/search", auth(messageH.Search))
	mux.Handle("DELETE /api/messages/{id}", auth(messageH.Hide))
	mux.Handle("DELETE /api/messages/{id}/all", auth(messageH.DeleteForAll))
	mux.Handle("POST /api/messages/{id}/forward", auth(messageH.Forward))
	mux.Handle("GET /api/users/search", auth(userH.Search))
	mux.Handle("PUT /api/profile", auth(userH.UpdateProfile))
	mux.HandleFunc("GET /api/health", healthH.Check)

	return &testServer{handler: mux, hub: hub, closeDB: db.Conn.Close}
}

func defaultLimits() limits { return limits{login: 100, send: 100, typing: 100} }

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

type request struct {
	method, path, token, socketID string
	body                          any
}

func (s *testServer) do(t *testing.T, req request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &buf)
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "203.0.113.7:5555"
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.socketID != "" {
		r.Header.Set(middleware.SocketIDHeader, req.socketID)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

type session struct {
	ID           int64
	Nickname     string
	AccessToken  string
	RefreshToken string
}

func (s *testServer) register(t *testing.T, nickname string) session {
	t.Helper()

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"nickname":              nickname,
		"email":                 nickname + "@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tokens services.AuthTokens
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	return session{
		ID:           tokens.User.ID,
		Nickname:     nickname,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type idOnly struct {
	ID int64 `json:"id"`
}

func (s *testServer) privateChat(t *testing.T, a, b session) int64 {
	t.Helper()
	w, env := s.do(t, request{method: http.MethodPost, path: "/api/chats/private", token: a.AccessToken,
		body: map[string]int64{"user_id": b.ID}})
	require.Contains(t, []int{http.StatusOK, http.StatusConflict}, w.Code, w.Body.String())
	if w.Code == http.StatusConflict {
		return decodeData[struct {
			ChatID int64 `json:"chat_id"`
		}](t, env).ChatID
	}
	return decodeData[idOnly](t, env).ID
}

func (s *testServer) send(t *testing.T, from session, chatID int64, body string) int64 {
	t.Helper()
	w, env := s.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/api/chats/%d/messages", chatID),
		token: from.AccessToken, body: map[string]string{"body": body}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeData[idOnly](t, env).ID
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada := s.register(t, "ada")

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"nickname": "ada", "email": "other@example.com",
		"password": "password123", "password_confirmation": "password123",
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "nickname")

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/auth/login",
		body: map[string]string{"nickname": "ada", "password": "password123"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/auth/me", token: ada.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeData[map[string]any](t, env)
	assert.Equal(t, "ada", me["nickname"])
	assert.NotContains(t, me, "password_hash")
}

func TestAuth_RequiresBearerToken(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.handler.ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuth_LoginRateLimited(t *testing.T) {
	s := newTestServer(t, limits{login: 2, send: 100, typing: 100})
	s.register(t, "ada")

	bad := map[string]string{"nickname": "ada", "password": "wrong-password"}
	for range 2 {
		w, _ := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: bad})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: bad})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.False(t, env.Success)
}

func TestAuth_RefreshRotatesAndLogout(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada := s.register(t, "ada")

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/auth/refresh", body: map[string]string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "refresh_token")

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/auth/refresh",
		body: map[string]string{"refresh_token": ada.RefreshToken}})
	require.Equal(t, http.StatusOK, w.Code)
	rotated := decodeData[services.AuthTokens](t, env)
	assert.NotEqual(t, ada.RefreshToken, rotated.RefreshToken)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/auth/refresh",
		body: map[string]string{"refresh_token": ada.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/auth/logout", token: rotated.AccessToken,
		body: map[string]string{"refresh_token": rotated.RefreshToken}})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/auth/refresh",
		body: map[string]string{"refresh_token": rotated.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChats_PrivateReturnsConflictForExisting(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada, bob := s.register(t, "ada"), s.register(t, "bob")

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/chats/private", token: ada.AccessToken,
		body: map[string]int64{"user_id": bob.ID}})
	require.Equal(t, http.StatusOK, w.Code)
	created := decodeData[idOnly](t, env)

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/chats/private", token: bob.AccessToken,
		body: map[string]int64{"user_id": ada.ID}})
	require.Equal(t, http.StatusConflict, w.Code)
	existing := decodeData[struct {
		ChatID int64  `json:"chat_id"`
		Chat   idOnly `json:"chat"`
	}](t, env)
	assert.Equal(t, created.ID, existing.ChatID)
	assert.Equal(t, created.ID, existing.Chat.ID)

	w, env = s.do(t, request{method: http.MethodPost, path: "/api/chats/private", token: ada.AccessToken,
		body: map[string]int64{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "user_id")
}

func TestChats_GroupMembershipAndAccess(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada, bob, eve := s.register(t, "ada"), s.register(t, "bob"), s.register(t, "eve")

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/chats/group", token: ada.AccessToken,
		body: map[string]any{"title": "team", "nicknames": []string{"@bob"}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	group := decodeData[idOnly](t, env)
	chatPath := fmt.Sprintf("/api/chats/%d", group.ID)

	w, _ = s.do(t, request{method: http.MethodGet, path: chatPath, token: eve.AccessToken})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: chatPath + "/users", token: bob.AccessToken,
		body: map[string]string{"nickname": "eve"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, request{method: http.MethodGet, path: chatPath, token: eve.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	detail := decodeData[struct {
		Users       []idOnly `json:"users"`
		TypingUsers []any    `json:"typing_users"`
	}](t, env)
	assert.Len(t, detail.Users, 3)
	assert.NotNil(t, detail.TypingUsers)

	w, _ = s.do(t, request{method: http.MethodPost, path: chatPath + "/users", token: ada.AccessToken,
		body: map[string]string{"nickname": "nobody"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/chats/abc", token: ada.AccessToken})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, request{method: http.MethodGet, path: "/api/chats", token: eve.AccessToken})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: "/api/chats/group", token: ada.AccessToken,
		body: map[string]any{"title": " ", "nicknames": []string{}}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMessages_Lifecycle(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada, bob := s.register(t, "ada"), s.register(t, "bob")
	chatID := s.privateChat(t, ada, bob)
	base := fmt.Sprintf("/api/chats/%d", chatID)

	first := s.send(t, ada, chatID, "hello there")
	s.send(t, bob, chatID, "general kenobi")

	w, env := s.do(t, request{method: http.MethodPost, path: base + "/messages", token: ada.AccessToken,
		body: map[string]string{"body": "   "}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "body")

	w, env = s.do(t, request{method: http.MethodGet, path: base + "/messages?page=1&per_page=1", token: bob.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeData[struct {
		Data     []idOnly `json:"data"`
		Total    int      `json:"total"`
		LastPage int      `json:"last_page"`
	}](t, env)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.LastPage)

	w, env = s.do(t, request{method: http.MethodGet, path: base + "/messages/search?query=HELLO", token: bob.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	found := decodeData[[]idOnly](t, env)
	require.Len(t, found, 1)
	assert.Equal(t, first, found[0].ID)

	w, _ = s.do(t, request{method: http.MethodGet, path: base + "/messages/search?query=h", token: bob.AccessToken})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: base + "/read", token: bob.AccessToken})
	assert.Equal(t, http.StatusNoContent, w.Code)

	msgPath := fmt.Sprintf("/api/messages/%d", first)
	w, _ = s.do(t, request{method: http.MethodDelete, path: msgPath + "/all", token: bob.AccessToken})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, request{method: http.MethodDelete, path: msgPath, token: bob.AccessToken})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, request{method: http.MethodDelete, path: msgPath + "/all", token: ada.AccessToken})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, request{method: http.MethodPost, path: msgPath + "/forward", token: ada.AccessToken,
		body: map[string]int64{"chat_id": chatID}})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestMessages_ForwardIntoOtherChat(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada, bob, cat := s.register(t, "ada"), s.register(t, "bob"), s.register(t, "cat")
	src := s.privateChat(t, ada, bob)
	dst := s.privateChat(t, ada, cat)
	msg := s.send(t, bob, src, "pass it on")

	w, env := s.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/api/messages/%d/forward", msg),
		token: ada.AccessToken, body: map[string]int64{"chat_id": dst}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fwd := decodeData[map[string]any](t, env)
	assert.EqualValues(t, msg, fwd["forward_from_message_id"])
	assert.EqualValues(t, dst, fwd["chat_id"])

	w, _ = s.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/api/messages/%d/forward", msg),
		token: cat.AccessToken, body: map[string]int64{"chat_id": dst}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMessages_SendRateLimited(t *testing.T) {
	s := newTestServer(t, limits{login: 100, send: 2, typing: 100})
	ada, bob := s.register(t, "ada"), s.register(t, "bob")
	chatID := s.privateChat(t, ada, bob)

	s.send(t, ada, chatID, "one")
	s.send(t, ada, chatID, "two")

	w, _ := s.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/api/chats/%d/messages", chatID),
		token: ada.AccessToken, body: map[string]string{"body": "three"}})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Limit kullanıcı başınadır.
	s.send(t, bob, chatID, "still fine")
}

func TestMessages_SocketIDExcludedFromBroadcast(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada, bob := s.register(t, "ada"), s.register(t, "bob")
	chatID := s.privateChat(t, ada, bob)

	w, _ := s.do(t, request{method: http.MethodPost, path: fmt.Sprintf("/api/chats/%d/messages", chatID),
		token: ada.AccessToken, socketID: "conn-42", body: map[string]string{"body": "hi"}})
	require.Equal(t, http.StatusCreated, w.Code)

	sent := s.hub.ByEvent("message.sent")
	require.NotEmpty(t, sent)
	assert.Equal(t, "conn-42", sent[0].ExcludeConnID)
}

func TestPresence_PingAndTyping(t *testing.T) {
	s := newTestServer(t, limits{login: 100, send: 100, typing: 1})
	ada, bob := s.register(t, "ada"), s.register(t, "bob")
	chatID := s.privateChat(t, ada, bob)

	w, env := s.do(t, request{method: http.MethodPost, path: "/api/auth/ping", token: ada.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeData[map[string]any](t, env), "last_seen_at")

	typingPath := fmt.Sprintf("/api/chats/%d/typing", chatID)
	w, _ = s.do(t, request{method: http.MethodPost, path: typingPath, token: ada.AccessToken})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, s.hub.ByEvent("user.typing"))

	w, _ = s.do(t, request{method: http.MethodPost, path: typingPath, token: ada.AccessToken})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestUsers_SearchAndProfile(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada := s.register(t, "ada")
	s.register(t, "adam")
	s.register(t, "bob")

	w, env := s.do(t, request{method: http.MethodGet, path: "/api/users/search?query=@ad", token: ada.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	found := decodeData[[]struct {
		Nickname string `json:"nickname"`
	}](t, env)
	require.Len(t, found, 1)
	assert.Equal(t, "adam", found[0].Nickname)

	w, env = s.do(t, request{method: http.MethodPut, path: "/api/profile", token: ada.AccessToken,
		body: map[string]string{"name": "  Ada  ", "nickname": "bob"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, env.Errors, "nickname")

	w, env = s.do(t, request{method: http.MethodPut, path: "/api/profile", token: ada.AccessToken,
		body: map[string]string{"name": "  Ada  "}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decodeData[map[string]any](t, env)["name"])
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, defaultLimits())
	ada := s.register(t, "ada")

	r := httptest.NewRequest(http.MethodPost, "/api/chats/private", bytes.NewBufferString("{not json"))
	r.Header.Set("Authorization", "Bearer "+ada.AccessToken)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, defaultLimits())

	w, env := s.do(t, request{method: http.MethodGet, path: "/api/health"})
	require.Equal(t, http.StatusOK, w.Code)
	health := decodeData[map[string]any](t, env)
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 3, health["connections"])

	require.NoError(t, s.closeDB())

	w, env = s.do(t, request{method: http.MethodGet, path: "/api/health"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decodeData[map[string]any](t, env)["status"])
}
