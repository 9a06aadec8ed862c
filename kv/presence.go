package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akinalp/relay/pkg/cache"
)

// PresenceTracker, kullanıcıların çevrimiçi durumunu tutar.
// Touch çağrılmayan kullanıcı PresenceTTL sonunda çevrimdışı sayılır.
type PresenceTracker interface {
	Touch(ctx context.Context, userID int64, at time.Time) error
	// Online, verilen kullanıcılardan çevrimiçi olanları son görülme zamanıyla döner.
	Online(ctx context.Context, userIDs []int64) (map[int64]time.Time, error)
}

// ─── Redis ───

type redisPresence struct {
	rdb redis.Cmdable
}

// NewRedisPresence, online_user:{id} anahtarlarını kullanan tracker.
func NewRedisPresence(rdb redis.Cmdable) PresenceTracker {
	return &redisPresence{rdb: rdb}
}

func (p *redisPresence) Touch(ctx context.Context, userID int64, at time.Time) error {
	if err := p.rdb.Set(ctx, presenceKey(userID), at.UTC().Format(time.RFC3339Nano), PresenceTTL).Err(); err != nil {
		return fmt.Errorf("presence touch: %w", err)
	}
	return nil
}

func (p *redisPresence) Online(ctx context.Context, userIDs []int64) (map[int64]time.Time, error) {
	online := make(map[int64]time.Time)
	if len(userIDs) == 0 {
		return online, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}

	values, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return online, fmt.Errorf("presence mget: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // nil → key yok (çevrimdışı)
		}
		at, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			continue
		}
		online[userIDs[i]] = at
	}
	return online, nil
}

// ─── In-memory ───

// MemoryPresence, tek instance çalışmada Redis yerine kullanılır.
type MemoryPresence struct {
	entries *cache.TTLCache[int64, time.Time]
}

// NewMemoryPresence, constructor.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{entries: cache.New[int64, time.Time](PresenceTTL, time.Minute)}
}

func (p *MemoryPresence) Touch(_ context.Context, userID int64, at time.Time) error {
	p.entries.Set(userID, at.UTC())
	return nil
}

func (p *MemoryPresence) Online(_ context.Context, userIDs []int64) (map[int64]time.Time, error) {
	online := make(map[int64]time.Time)
	for _, id := range userIDs {
		if at, ok := p.entries.Get(id); ok {
			online[id] = at
		}
	}
	return online, nil
}

// Close, arka plan temizleyicisini durdurur.
func (p *MemoryPresence) Close() { p.entries.Close() }
