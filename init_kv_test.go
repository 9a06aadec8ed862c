package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/relay/config"
)

func TestInitBackends_InMemoryWithoutRedis(t *testing.T) {
	b := initBackends(context.Background(), config.RedisConfig{}, zap.NewNop())
	t.Cleanup(b.Close)

	assert.Nil(t, b.Redis)

	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, b.Presence.Touch(ctx, 1, at))

	online, err := b.Presence.Online(ctx, []int64{1})
	require.NoError(t, err)
	assert.Contains(t, online, int64(1))
}

func TestInitBackends_UnreachableRedisDoesNotBlockStartup(t *testing.T) {
	b := initBackends(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop())
	require.NotNil(t, b)
	t.Cleanup(b.Close)

	require.NotNil(t, b.Redis)
	require.NotNil(t, b.Presence)
	require.NotNil(t, b.Typing)
	require.NotNil(t, b.Summary)

	// Çağrılar hata döner; servisler bunu boş sonuç olarak yorumlar.
	_, err := b.Presence.Online(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestInitBackends_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	b := initBackends(context.Background(), config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	t.Cleanup(b.Close)

	require.NotNil(t, b.Redis)
	require.NoError(t, b.Presence.Touch(context.Background(), 7, time.Now()))
	assert.True(t, mr.Exists("online_user:7"))
}
