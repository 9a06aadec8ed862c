package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg/cache"
)

// SummaryCache, kullanıcı başına "okunmamışlarıyla sohbetler" listesini tutar.
//
// Değer türetilmiş veridir: kaynağı her zaman SQLite'tır. Sohbeti etkileyen
// her commit'ten sonra tüm üyeler için Invalidate çağrılır.
type SummaryCache interface {
	Get(ctx context.Context, userID int64) ([]models.ChatSummary, bool, error)
	Set(ctx context.Context, userID int64, summaries []models.ChatSummary) error
	Invalidate(ctx context.Context, userIDs ...int64) error
}

// ─── Redis ───

type redisSummaryCache struct {
	rdb redis.Cmdable
}

// NewRedisSummaryCache, user:{id}:chats_with_unread anahtarlarını kullanan cache.
func NewRedisSummaryCache(rdb redis.Cmdable) SummaryCache {
	return &redisSummaryCache{rdb: rdb}
}

func (c *redisSummaryCache) Get(ctx context.Context, userID int64) ([]models.ChatSummary, bool, error) {
	raw, err := c.rdb.Get(ctx, summaryKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("summary get: %w", err)
	}

	var summaries []models.ChatSummary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		return nil, false, fmt.Errorf("summary decode: %w", err)
	}
	return summaries, true, nil
}

func (c *redisSummaryCache) Set(ctx context.Context, userID int64, summaries []models.ChatSummary) error {
	raw, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("summary encode: %w", err)
	}
	if err := c.rdb.Set(ctx, summaryKey(userID), raw, SummaryTTL).Err(); err != nil {
		return fmt.Errorf("summary set: %w", err)
	}
	return nil
}

func (c *redisSummaryCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = summaryKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("summary invalidate: %w", err)
	}
	return nil
}

// ─── In-memory ───

// MemorySummaryCache, TTLCache üzerinde JSON saklar; okuyanlar her seferinde
// kendi kopyalarını alır.
type MemorySummaryCache struct {
	entries *cache.TTLCache[int64, []byte]
}

// NewMemorySummaryCache, constructor.
func NewMemorySummaryCache() *MemorySummaryCache {
	return &MemorySummaryCache{entries: cache.New[int64, []byte](SummaryTTL, 2*time.Minute)}
}

func (c *MemorySummaryCache) Get(_ context.Context, userID int64) ([]models.ChatSummary, bool, error) {
	raw, ok := c.entries.Get(userID)
	if !ok {
		return nil, false, nil
	}
	var summaries []models.ChatSummary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		return nil, false, fmt.Errorf("summary decode: %w", err)
	}
	return summaries, true, nil
}

func (c *MemorySummaryCache) Set(_ context.Context, userID int64, summaries []models.ChatSummary) error {
	raw, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("summary encode: %w", err)
	}
	c.entries.Set(userID, raw)
	return nil
}

func (c *MemorySummaryCache) Invalidate(_ context.Context, userIDs ...int64) error {
	for _, id := range userIDs {
		c.entries.Delete(id)
	}
	return nil
}

// Close, arka plan temizleyicisini durdurur.
func (c *MemorySummaryCache) Close() { c.entries.Close() }
