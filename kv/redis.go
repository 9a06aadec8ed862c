// Package kv, geçici (ephemeral) durumun tutulduğu key-value katmanıdır.
//
// Presence, typing göstergeleri ve kullanıcı başına sohbet özeti cache'i
// burada yaşar. Her biri için bir interface, bir Redis implementasyonu ve
// Redis yapılandırılmadığında (tek instance, test) kullanılan bir in-memory
// implementasyon vardır.
//
// Bu katmandaki hatalar geçicidir: çağıran servisler hatayı loglar ve
// "boş sonuç" ile devam eder (fail-open). Kalıcı veri asla buraya yazılmaz.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key şablonları. Diğer servislerle (ör. eski istemciler) paylaşıldığı için sabittir.
const (
	presenceKeyFmt   = "online_user:%d"
	typingSetKeyFmt  = "typing:chat:%d:users"
	typingUserKeyFmt = "typing:chat:%d:user:%d"
	summaryKeyFmt    = "user:%d:chats_with_unread"
)

// TTL'ler.
const (
	PresenceTTL = 70 * time.Second
	TypingTTL   = 5 * time.Second
	SummaryTTL  = 60 * time.Second
)

// RedisConfig, Redis bağlantı ayarları.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient, Redis client'ı oluşturur ve bağlantıyı Ping ile yoklar.
//
// Ping başarısız olsa bile client döner: go-redis bağlantıyı ilk komutta
// yeniden kurar, presence/typing/cache çağrıları o zamana kadar fail-open
// çalışır. Hatanın ne yapılacağına çağıran karar verir.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return rdb, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	logger.Named("kv").Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return rdb, nil
}

func presenceKey(userID int64) string { return fmt.Sprintf(presenceKeyFmt, userID) }

func typingSetKey(chatID int64) string { return fmt.Sprintf(typingSetKeyFmt, chatID) }

func typingUserKey(chatID, userID int64) string {
	return fmt.Sprintf(typingUserKeyFmt, chatID, userID)
}

func summaryKey(userID int64) string { return fmt.Sprintf(summaryKeyFmt, userID) }
