package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/repository"
)

// pausingChatRepo, ilk ListForUser çağrısından sonra release kapanana kadar bekler.
type pausingChatRepo struct {
	repository.ChatRepository

	once    sync.Once
	listed  chan struct{}
	release chan struct{}
}

func (r *pausingChatRepo) ListForUser(ctx context.Context, userID int64) ([]models.ChatWithMembers, error) {
	chats, err := r.ChatRepository.ListForUser(ctx, userID)
	r.once.Do(func() {
		close(r.listed)
		<-r.release
	})
	return chats, err
}

func TestSummaryService_InvalidateDuringComputeSkipsCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.createUser(t, "alice")
	bob := e.createUser(t, "bob")
	chat := e.privateChat(t, alice, bob)

	repo := &pausingChatRepo{
		ChatRepository: e.chats,
		listed:         make(chan struct{}),
		release:        make(chan struct{}),
	}
	svc := NewSummaryService(repo, e.messages, e.cache, e.presence, 0, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetChatsWithUnread(ctx, bob.ID)
		done <- err
	}()

	<-repo.listed
	svc.Invalidate(ctx, bob.ID)
	close(repo.release)
	require.NoError(t, <-done)

	_, ok, err := e.cache.Get(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok, "result computed before invalidation must not be cached")

	// Araya değişiklik girmeyen hesap cache'lenir.
	list, err := svc.GetChatsWithUnread(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, chat.ID, list[0].Chat.ID)

	_, ok, err = e.cache.Get(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
