package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akinalp/relay/pkg/cache"
)

// TypingTracker, sohbet başına "yazıyor" göstergesini tutar.
//
// Her StartTyping üyeye özel bir anahtar yazar (TypingTTL). Set'in kendi
// EXPIRE'ı her eklemede yenilendiği için set'te süresi geçmiş üyeler kalabilir;
// TypingUserIDs bunları üye anahtarına bakarak eler.
type TypingTracker interface {
	StartTyping(ctx context.Context, chatID, userID int64) error
	TypingUserIDs(ctx context.Context, chatID int64) ([]int64, error)
}

// ─── Redis ───

type redisTyping struct {
	rdb redis.Cmdable
}

// NewRedisTyping, typing:chat:{id}:users set'i + üye anahtarlarını kullanan tracker.
func NewRedisTyping(rdb redis.Cmdable) TypingTracker {
	return &redisTyping{rdb: rdb}
}

func (t *redisTyping) StartTyping(ctx context.Context, chatID, userID int64) error {
	setKey := typingSetKey(chatID)

	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, typingUserKey(chatID, userID), "1", TypingTTL)
		pipe.SAdd(ctx, setKey, userID)
		pipe.Expire(ctx, setKey, TypingTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("typing start: %w", err)
	}
	return nil
}

func (t *redisTyping) TypingUserIDs(ctx context.Context, chatID int64) ([]int64, error) {
	setKey := typingSetKey(chatID)

	members, err := t.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("typing smembers: %w", err)
	}
	if len(members) == 0 {
		return []int64{}, nil
	}

	ids := make([]int64, 0, len(members))
	keys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		keys = append(keys, typingUserKey(chatID, id))
	}
	if len(keys) == 0 {
		return []int64{}, nil
	}

	values, err := t.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("typing mget: %w", err)
	}

	live := make([]int64, 0, len(ids))
	var stale []any
	for i, v := range values {
		if v == nil {
			stale = append(stale, ids[i])
			continue
		}
		live = append(live, ids[i])
	}

	// Süresi geçmiş üyeleri set'ten temizle. Hata önemsiz: bir sonraki okuma yine eler.
	if len(stale) > 0 {
		_ = t.rdb.SRem(ctx, setKey, stale...).Err()
	}

	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })
	return live, nil
}

// ─── In-memory ───

type typingKey struct {
	chatID int64
	userID int64
}

// MemoryTyping, tek instance çalışmada Redis yerine kullanılır.
type MemoryTyping struct {
	entries *cache.TTLCache[typingKey, struct{}]
}

// NewMemoryTyping, constructor.
func NewMemoryTyping() *MemoryTyping {
	return &MemoryTyping{entries: cache.New[typingKey, struct{}](TypingTTL, 30*time.Second)}
}

func (t *MemoryTyping) StartTyping(_ context.Context, chatID, userID int64) error {
	t.entries.Set(typingKey{chatID: chatID, userID: userID}, struct{}{})
	return nil
}

func (t *MemoryTyping) TypingUserIDs(_ context.Context, chatID int64) ([]int64, error) {
	ids := []int64{}
	for k := range t.entries.Snapshot() {
		if k.chatID == chatID {
			ids = append(ids, k.userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Close, arka plan temizleyicisini durdurur.
func (t *MemoryTyping) Close() { t.entries.Close() }
