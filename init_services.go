// Package main: Service katmanı başlatma.
//
// initServices, tüm service implementasyonlarını oluşturur.
// Her service, ihtiyaç duyduğu repository interface'lerini ve diğer
// dependency'leri constructor injection ile alır.
//
// Sıralama: presence → summary → chat/message/user. Summary, presence'a;
// chat ise hem summary'ye hem presence'a bağımlıdır.
package main

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/relay/config"
	"github.com/akinalp/relay/pkg/crypto"
	"github.com/akinalp/relay/pkg/ratelimit"
	"github.com/akinalp/relay/services"
	"github.com/akinalp/relay/ws"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth     services.AuthService
	Presence services.PresenceService
	Summary  services.SummaryService
	Chat     services.ChatService
	Message  services.MessageService
	User     services.UserService
}

// RateLimiters, tüm rate limiter instance'larını tutan container.
type RateLimiters struct {
	Login  *ratelimit.Limiter[string] // IP başına
	Send   *ratelimit.Limiter[int64]  // kullanıcı başına send + forward
	Typing *ratelimit.Limiter[int64]  // kullanıcı başına typing
}

// Close, limiter'ların cleanup goroutine'lerini durdurur.
func (l *RateLimiters) Close() {
	l.Login.Close()
	l.Send.Close()
	l.Typing.Close()
}

func initServices(
	db *sql.DB,
	codec crypto.BodyCodec,
	repos *Repositories,
	backends *Backends,
	hub *ws.Hub,
	cfg *config.Config,
	logger *zap.Logger,
) (*Services, *RateLimiters) {
	opTimeout := cfg.Redis.OpTimeout

	authService := services.NewAuthService(
		repos.User, repos.Session,
		cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry,
		logger,
	)

	presenceService := services.NewPresenceService(
		repos.User, repos.Chat, backends.Presence, backends.Typing, hub, opTimeout, logger,
	)
	summaryService := services.NewSummaryService(
		repos.Chat, repos.Message, backends.Summary, presenceService, opTimeout, logger,
	)

	chatService := services.NewChatService(
		db, repos.Chat, repos.User, repos.Message, summaryService, presenceService, hub, hub, logger,
	)
	messageService := services.NewMessageService(
		db, codec, repos.Chat, repos.Message, summaryService, hub, logger,
	)
	userService := services.NewUserService(repos.User, repos.Chat, summaryService, logger)

	svcs := &Services{
		Auth:     authService,
		Presence: presenceService,
		Summary:  summaryService,
		Chat:     chatService,
		Message:  messageService,
		User:     userService,
	}

	rl := cfg.RateLimit
	limiters := &RateLimiters{
		Login:  ratelimit.NewPerWindow[string](rl.LoginAttempts, rl.LoginWindow),
		Send:   ratelimit.NewPerWindow[int64](rl.MessagesPerMinute, time.Minute),
		Typing: ratelimit.NewPerWindow[int64](rl.TypingPerMinute, time.Minute),
	}

	return svcs, limiters
}
