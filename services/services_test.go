package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/relay/database/dbtest"
	"github.com/akinalp/relay/kv"
	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg/crypto"
	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/ws/wstest"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// env, gerçek SQLite + in-memory kv + kayıt tutan publisher ile kurulmuş servis grafiği.
type env struct {
	users    repository.UserRepository
	chats    repository.ChatRepository
	messages repository.MessageRepository
	sessions repository.SessionRepository

	presenceKV *kv.MemoryPresence
	typingKV   *kv.MemoryTyping
	cache      *kv.MemorySummaryCache
	hub        *wstest.Recorder

	auth     AuthService
	presence PresenceService
	summary  SummaryService
	chat     ChatService
	message  MessageService
	user     UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := dbtest.New(t)
	codec, err := crypto.NewAESCodec(testKey)
	require.NoError(t, err)

	logger := zap.NewNop()
	e := &env{
		users:      repository.NewSQLiteUserRepo(db.Conn),
		chats:      repository.NewSQLiteChatRepo(db.Conn),
		messages:   repository.NewSQLiteMessageRepo(db.Conn, codec),
		sessions:   repository.NewSQLiteSessionRepo(db.Conn),
		presenceKV: kv.NewMemoryPresence(),
		typingKV:   kv.NewMemoryTyping(),
		cache:      kv.NewMemorySummaryCache(),
		hub:        &wstest.Recorder{},
	}
	t.Cleanup(func() {
		e.presenceKV.Close()
		e.typingKV.Close()
		e.cache.Close()
	})

	e.auth = NewAuthService(e.users, e.sessions, "test-secret", 15, 7, logger)
	e.presence = NewPresenceService(e.users, e.chats, e.presenceKV, e.typingKV, e.hub, 0, logger)
	e.summary = NewSummaryService(e.chats, e.messages, e.cache, e.presence, 0, logger)
	e.chat = NewChatService(db.Conn, e.chats, e.users, e.messages, e.summary, e.presence, e.hub, e.hub, logger)
	e.message = NewMessageService(db.Conn, codec, e.chats, e.messages, e.summary, e.hub, logger)
	e.user = NewUserService(e.users, e.chats, e.summary, logger)
	return e
}

func (e *env) createUser(t *testing.T, nickname string) *models.User {
	t.Helper()
	u := &models.User{
		Nickname:     nickname,
		Email:        nickname + "@example.com",
		PasswordHash: "hash",
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *env) privateChat(t *testing.T, a, b *models.User) *models.ChatWithMembers {
	t.Helper()
	chat, _, err := e.chat.CreatePrivate(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	return chat
}

func (e *env) send(t *testing.T, chatID int64, from *models.User, body string) *models.Message {
	t.Helper()
	msg, err := e.message.Send(context.Background(), chatID, from.ID, &models.SendMessageRequest{Body: body})
	require.NoError(t, err)
	return msg
}

func (e *env) summaryFor(t *testing.T, userID, chatID int64) models.ChatSummary {
	t.Helper()
	list, err := e.chat.ListChats(context.Background(), userID)
	require.NoError(t, err)
	for _, s := range list {
		if s.Chat.ID == chatID {
			return s
		}
	}
	t.Fatalf("chat %d not in summaries of user %d", chatID, userID)
	return models.ChatSummary{}
}
