// Package main: Ephemeral state (presence, typing, özet cache) başlatma.
//
// REDIS_ADDR tanımlıysa Redis implementasyonları ve instance'lar arası
// event köprüsü kullanılır. Tanımlı değilse tek instance için in-memory
// implementasyonlar devreye girer.
package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akinalp/relay/config"
	"github.com/akinalp/relay/kv"
)

// Backends, kv katmanının seçilmiş implementasyonları.
type Backends struct {
	Presence kv.PresenceTracker
	Typing   kv.TypingTracker
	Summary  kv.SummaryCache

	// Redis, yalnızca REDIS_ADDR tanımlıysa dolu. Event köprüsü bunu kullanır.
	Redis *redis.Client

	closers []func()
}

// Close, in-memory cleanup goroutine'lerini durdurur ve Redis bağlantısını kapatır.
func (b *Backends) Close() {
	for _, c := range b.closers {
		c()
	}
}

// initBackends, Redis'e ulaşılamasa bile Redis implementasyonlarını döner;
// başlangıç bu yüzden hiçbir zaman Redis'e bağlı kalmaz.
func initBackends(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Backends {
	if !cfg.Enabled() {
		presence := kv.NewMemoryPresence()
		typing := kv.NewMemoryTyping()
		summary := kv.NewMemorySummaryCache()

		logger.Info("redis not configured, using in-memory presence/typing/cache")
		return &Backends{
			Presence: presence,
			Typing:   typing,
			Summary:  summary,
			closers:  []func(){presence.Close, typing.Close, summary.Close},
		}
	}

	rdb, err := kv.NewRedisClient(ctx, kv.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger)
	if err != nil {
		// Ephemeral state zorunlu değil: servis ayağa kalkar, kv çağrıları
		// Redis dönene kadar boş sonuçla devam eder.
		logger.Warn("redis unreachable at startup, continuing degraded",
			zap.String("addr", cfg.Addr), zap.Error(err))
	}

	return &Backends{
		Presence: kv.NewRedisPresence(rdb),
		Typing:   kv.NewRedisTyping(rdb),
		Summary:  kv.NewRedisSummaryCache(rdb),
		Redis:    rdb,
		closers: []func(){func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("failed to close redis client", zap.Error(err))
			}
		}},
	}
}
