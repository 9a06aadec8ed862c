package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/ws"
	"github.com/akinalp/relay/ws/wstest"
)

func TestChatService_CreatePrivate_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")

	first, created, err := e.chat.CreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ChatTypePrivate, first.Type)
	assert.Nil(t, first.Title)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID}, first.MemberIDs())

	second, created, err := e.chat.CreatePrivate(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestChatService_CreatePrivate_Concurrent(t *testing.T) {
	e := newEnv(t)
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")

	const n = 8
	ids := make([]int64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			chat, _, err := e.chat.CreatePrivate(context.Background(), a, b)
			errs[i] = err
			if err == nil {
				ids[i] = chat.ID
			}
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	chatIDs, err := e.chats.ChatIDsForUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, chatIDs, 1)
}

func TestChatService_CreatePrivate_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")

	_, _, err := e.chat.CreatePrivate(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, pkg.ErrValidation)

	_, _, err = e.chat.CreatePrivate(ctx, alice.ID, 9999)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChatService_CreateGroup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	carol := e.createUser(t, "carol")

	chat, err := e.chat.CreateGroup(ctx, alice.ID, &models.CreateGroupChatRequest{
		Title:     "  Team  ",
		Nicknames: []string{"@bob", "CAROL", "bob", "alice", "ghost"},
	})
	require.NoError(t, err)
	require.NotNil(t, chat.Title)
	assert.Equal(t, "Team", *chat.Title)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID, carol.ID}, chat.MemberIDs())

	for _, m := range chat.Users {
		if m.ID == alice.ID {
			assert.Equal(t, models.RoleOwner, m.Role)
		} else {
			assert.Equal(t, models.RoleMember, m.Role)
		}
	}

	updates := e.hub.ByEvent(ws.EventChatUpdated)
	channels := make([]string, 0, len(updates))
	for _, u := range updates {
		channels = append(channels, u.Channel)
	}
	assert.ElementsMatch(t, []string{ws.UserChannel(bob.ID), ws.UserChannel(carol.ID)}, channels)

	_, err = e.chat.CreateGroup(ctx, alice.ID, &models.CreateGroupChatRequest{
		Title:     "Nobody",
		Nicknames: []string{"ghost", "phantom"},
	})
	var verr *pkg.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "nicknames")

	_, err = e.chat.CreateGroup(ctx, alice.ID, &models.CreateGroupChatRequest{Nicknames: []string{"bob"}})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
}

func TestChatService_AddMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	carol := e.createUser(t, "carol")
	dave := e.createUser(t, "dave")

	group, err := e.chat.CreateGroup(ctx, alice.ID, &models.CreateGroupChatRequest{Title: "G", Nicknames: []string{"bob"}})
	require.NoError(t, err)
	e.send(t, group.ID, alice, "welcome")
	e.hub.Reset()

	full, err := e.chat.AddMemberByNickname(ctx, group.ID, bob.ID, "carol")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice.ID, bob.ID, carol.ID}, full.MemberIDs())

	updates := e.hub.ByEvent(ws.EventChatUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, ws.UserChannel(carol.ID), updates[0].Channel)
	var payload ws.ChatUpdatedPayload
	require.NoError(t, updates[0].Decode(&payload))
	require.NotNil(t, payload.LastMessage)
	assert.Equal(t, "welcome", payload.LastMessage.Body)

	// Tekrar eklemek no-op: event yok.
	e.hub.Reset()
	_, err = e.chat.AddMemberByNickname(ctx, group.ID, bob.ID, "carol")
	require.NoError(t, err)
	assert.Empty(t, e.hub.ByEvent(ws.EventChatUpdated))

	_, err = e.chat.AddMemberByNickname(ctx, group.ID, dave.ID, "dave")
	assert.ErrorIs(t, err, pkg.ErrNotAMember)

	_, err = e.chat.AddMemberByNickname(ctx, group.ID, alice.ID, "ghost")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = e.chat.AddMemberByNickname(ctx, 9999, alice.ID, "dave")
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	private := e.privateChat(t, alice, bob)
	_, err = e.chat.AddMemberByNickname(ctx, private.ID, alice.ID, "dave")
	assert.ErrorIs(t, err, pkg.ErrForbidden)
}

func TestChatService_GetChat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	eve := e.createUser(t, "eve")
	chat := e.privateChat(t, alice, bob)

	_, err := e.presence.Ping(ctx, bob.ID)
	require.NoError(t, err)
	require.NoError(t, e.presence.Typing(ctx, chat.ID, bob.ID))
	require.NoError(t, e.presence.Typing(ctx, chat.ID, alice.ID))

	detail, err := e.chat.GetChat(ctx, chat.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, detail.TypingUsers, 1)
	assert.Equal(t, bob.ID, detail.TypingUsers[0].ID)
	assert.Equal(t, "bob", detail.TypingUsers[0].Label)

	for _, m := range detail.Users {
		assert.Equal(t, m.ID == bob.ID, m.Online, "member %d", m.ID)
	}

	_, err = e.chat.GetChat(ctx, chat.ID, eve.ID)
	assert.ErrorIs(t, err, pkg.ErrNotAMember)

	_, err = e.chat.GetChat(ctx, 9999, alice.ID)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChatService_DeleteChat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	eve := e.createUser(t, "eve")
	chat := e.privateChat(t, alice, bob)

	// Cache'i doldur; silmeden sonra liste güncel olmalı.
	e.summaryFor(t, bob.ID, chat.ID)

	assert.ErrorIs(t, e.chat.DeleteChat(ctx, chat.ID, eve.ID), pkg.ErrNotAMember)
	assert.Empty(t, e.hub.Revocations())

	require.NoError(t, e.chat.DeleteChat(ctx, chat.ID, alice.ID))
	assert.Equal(t, []wstest.Revoked{{UserID: 0, Channel: ws.ChatChannel(chat.ID)}}, e.hub.Revocations())

	list, err := e.chat.ListChats(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, e.chat.DeleteChat(ctx, chat.ID, alice.ID), pkg.ErrNotFound)
}

func TestChatService_MarkRead_Monotonic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	chat := e.privateChat(t, alice, bob)

	m1 := e.send(t, chat.ID, alice, "one")
	e.send(t, chat.ID, alice, "two")
	m3 := e.send(t, chat.ID, alice, "three")

	assert.Equal(t, 3, e.summaryFor(t, bob.ID, chat.ID).UnreadCount)

	require.NoError(t, e.chat.MarkRead(ctx, chat.ID, bob.ID, &m3.ID))
	assert.Equal(t, 0, e.summaryFor(t, bob.ID, chat.ID).UnreadCount)

	// Daha eski bir mesaj imleci geri almaz.
	e.hub.Reset()
	require.NoError(t, e.chat.MarkRead(ctx, chat.ID, bob.ID, &m1.ID))
	membership, err := e.chats.GetMembership(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, membership.LastReadMessageID)
	assert.Equal(t, m3.ID, *membership.LastReadMessageID)

	reads := e.hub.ByEvent(ws.EventMessageRead)
	require.Len(t, reads, 1)
	var payload ws.MessageReadPayload
	require.NoError(t, reads[0].Decode(&payload))
	assert.Equal(t, m3.ID, payload.LastReadMessageID)
	assert.Equal(t, bob.ID, payload.User.ID)

}

func TestChatService_MarkRead_Targets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	carol := e.createUser(t, "carol")
	chat := e.privateChat(t, alice, bob)
	other := e.privateChat(t, alice, carol)

	own := e.send(t, chat.ID, bob, "mine")
	foreign := e.send(t, other.ID, alice, "elsewhere")
	m := e.send(t, chat.ID, alice, "hi")

	// Kendi mesajı ya da başka sohbetin mesajı yok sayılır.
	e.hub.Reset()
	require.NoError(t, e.chat.MarkRead(ctx, chat.ID, bob.ID, &own.ID))
	require.NoError(t, e.chat.MarkRead(ctx, chat.ID, bob.ID, &foreign.ID))
	assert.Empty(t, e.hub.Events())

	membership, err := e.chats.GetMembership(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, membership.LastReadMessageID)

	// message_id verilmezse başkalarından gelen en yeni mesaj.
	require.NoError(t, e.chat.MarkRead(ctx, chat.ID, bob.ID, nil))
	membership, err = e.chats.GetMembership(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, membership.LastReadMessageID)
	assert.Equal(t, m.ID, *membership.LastReadMessageID)

	assert.Len(t, e.hub.ByEvent(ws.EventUserPresence), 1)
	assert.Len(t, e.hub.ByEvent(ws.EventMessageRead), 1)

	assert.ErrorIs(t, e.chat.MarkRead(ctx, chat.ID, carol.ID, nil), pkg.ErrNotAMember)
}

func TestChatService_CanSubscribe(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	eve := e.createUser(t, "eve")
	chat := e.privateChat(t, alice, bob)

	tests := []struct {
		name    string
		userID  int64
		channel string
		want    bool
	}{
		{"member chat channel", alice.ID, ws.ChatChannel(chat.ID), true},
		{"non-member chat channel", eve.ID, ws.ChatChannel(chat.ID), false},
		{"own user channel", eve.ID, ws.UserChannel(eve.ID), true},
		{"foreign user channel", eve.ID, ws.UserChannel(alice.ID), false},
		{"malformed", alice.ID, "chat.abc", false},
		{"unknown prefix", alice.ID, "room.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := e.chat.CanSubscribe(ctx, tt.userID, tt.channel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// Uçtan uca senaryo: sohbet oluşturma, mesajlaşma, okundu, gizleme ve herkesten silme.
func TestChatFlow_EndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := ws.WithConnID(context.Background(), "conn-alice")
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")

	chat, created, err := e.chat.CreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.True(t, created)

	hello := e.send(t, chat.ID, alice, "hello bob")
	again, err := e.message.Send(ctx, chat.ID, alice.ID, &models.SendMessageRequest{Body: "are you there?"})
	require.NoError(t, err)

	sent := e.hub.ByEvent(ws.EventMessageSent)
	require.Len(t, sent, 2)
	assert.Equal(t, ws.ChatChannel(chat.ID), sent[1].Channel)
	assert.Equal(t, "conn-alice", sent[1].ExcludeConnID)

	bobSummary := e.summaryFor(t, bob.ID, chat.ID)
	assert.Equal(t, 2, bobSummary.UnreadCount)
	require.NotNil(t, bobSummary.LastMessage)
	assert.Equal(t, again.ID, bobSummary.LastMessage.ID)
	assert.Equal(t, 0, e.summaryFor(t, alice.ID, chat.ID).UnreadCount)

	require.NoError(t, e.chat.MarkRead(context.Background(), chat.ID, bob.ID, nil))
	assert.Equal(t, 0, e.summaryFor(t, bob.ID, chat.ID).UnreadCount)

	page, err := e.message.List(ctx, chat.ID, alice.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.True(t, page.Data[0].Read)
	assert.True(t, page.Data[1].Read)

	reply := e.send(t, chat.ID, bob, "yes")
	assert.Equal(t, 1, e.summaryFor(t, alice.ID, chat.ID).UnreadCount)

	// Bob kendi için gizler: Alice hâlâ görür.
	require.NoError(t, e.message.HideForUser(ctx, reply.ID, bob.ID))
	bobPage, err := e.message.List(ctx, chat.ID, bob.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, bobPage.Data, 2)
	alicePage, err := e.message.List(ctx, chat.ID, alice.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, alicePage.Data, 3)

	// Alice ilk mesajı herkesten siler.
	require.NoError(t, e.message.DeleteForAll(ctx, hello.ID, alice.ID))
	bobPage, err = e.message.List(ctx, chat.ID, bob.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, bobPage.Data, 1)
	assert.Equal(t, again.ID, bobPage.Data[0].ID)
}
