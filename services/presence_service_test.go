package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/ws"
)

// failingKV, kv erişilemez durumunu taklit eder.
type failingKV struct{}

var errKVDown = errors.New("kv down")

func (failingKV) Touch(context.Context, int64, time.Time) error { return errKVDown }
func (failingKV) Online(context.Context, []int64) (map[int64]time.Time, error) {
	return nil, errKVDown
}
func (failingKV) StartTyping(context.Context, int64, int64) error { return errKVDown }
func (failingKV) TypingUserIDs(context.Context, int64) ([]int64, error) {
	return nil, errKVDown
}

func TestPresenceService_Ping(t *testing.T) {
	e := newEnv(t)
	ctx := ws.WithConnID(context.Background(), "c9")
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	carol := e.createUser(t, "carol")
	first := e.privateChat(t, alice, bob)
	second := e.privateChat(t, alice, carol)

	at, err := e.presence.Ping(ctx, alice.ID)
	require.NoError(t, err)

	stored, err := e.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSeenAt)
	assert.WithinDuration(t, at, *stored.LastSeenAt, time.Millisecond)

	online, err := e.presenceKV.Online(ctx, []int64{alice.ID, bob.ID})
	require.NoError(t, err)
	assert.Contains(t, online, alice.ID)
	assert.NotContains(t, online, bob.ID)

	events := e.hub.ByEvent(ws.EventUserPresence)
	channels := make([]string, 0, len(events))
	for _, ev := range events {
		channels = append(channels, ev.Channel)
		assert.Equal(t, "c9", ev.ExcludeConnID)
	}
	assert.ElementsMatch(t, []string{ws.ChatChannel(first.ID), ws.ChatChannel(second.ID)}, channels)

	var payload ws.PresencePayload
	require.NoError(t, events[0].Decode(&payload))
	assert.Equal(t, alice.ID, payload.User.ID)
	require.NotNil(t, payload.User.Name)
	assert.Equal(t, alice.Email, *payload.User.Name)
}

func TestPresenceService_Typing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	eve := e.createUser(t, "eve")
	chat := e.privateChat(t, alice, bob)

	assert.ErrorIs(t, e.presence.Typing(ctx, chat.ID, eve.ID), pkg.ErrNotAMember)
	assert.Empty(t, e.hub.ByEvent(ws.EventUserTyping))

	require.NoError(t, e.presence.Typing(ctx, chat.ID, alice.ID))
	typing := e.hub.ByEvent(ws.EventUserTyping)
	require.Len(t, typing, 1)
	assert.Equal(t, ws.ChatChannel(chat.ID), typing[0].Channel)

	var payload ws.TypingPayload
	require.NoError(t, typing[0].Decode(&payload))
	assert.Equal(t, alice.ID, payload.User.ID)
	assert.Equal(t, alice.Email, payload.User.Email)

	users := e.presence.TypingUsers(ctx, chat.ID, bob.ID)
	require.Len(t, users, 1)
	assert.Equal(t, alice.ID, users[0].ID)

	assert.Empty(t, e.presence.TypingUsers(ctx, chat.ID, alice.ID))
}

func TestPresenceService_TypingLabels(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	viewer := e.createUser(t, "viewer")
	full := &models.User{Nickname: "full", Name: models.NullableString("Ada"), LastName: models.NullableString("Lovelace"), Email: "ada@example.com", PasswordHash: "x"}
	first := &models.User{Nickname: "first", Name: models.NullableString("Grace"), Email: "grace@example.com", PasswordHash: "x"}
	require.NoError(t, e.users.Create(ctx, full))
	require.NoError(t, e.users.Create(ctx, first))

	chat, err := e.chat.CreateGroup(ctx, viewer.ID, &models.CreateGroupChatRequest{Title: "G", Nicknames: []string{"full", "first"}})
	require.NoError(t, err)

	require.NoError(t, e.presence.Typing(ctx, chat.ID, full.ID))
	require.NoError(t, e.presence.Typing(ctx, chat.ID, first.ID))

	users := e.presence.TypingUsers(ctx, chat.ID, viewer.ID)
	assert.Equal(t, []models.TypingUser{
		{ID: full.ID, Label: "Ada Lovelace"},
		{ID: first.ID, Label: "Grace"},
	}, users)
}

func TestPresenceService_FailOpen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	chat := e.privateChat(t, alice, bob)

	svc := NewPresenceService(e.users, e.chats, failingKV{}, failingKV{}, e.hub, 10*time.Millisecond, zap.NewNop())

	_, err := svc.Ping(ctx, alice.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Typing(ctx, chat.ID, alice.ID))
	assert.Empty(t, svc.TypingUsers(ctx, chat.ID, bob.ID))

	members, err := e.chats.ListMembers(ctx, chat.ID)
	require.NoError(t, err)
	svc.Annotate(ctx, members)
	for _, m := range members {
		assert.False(t, m.Online)
	}
	for _, m := range members {
		if m.ID == alice.ID {
			assert.NotNil(t, m.LastSeenAt, "durable last_seen_at survives kv failure")
		}
	}
}
