// Package main: Handler katmanı başlatma.
//
// initHandlers, tüm HTTP handler'larını oluşturur.
// Handler'lar "thin" dir: sadece HTTP parse + service call + response write.
package main

import (
	"go.uber.org/zap"

	"github.com/akinalp/relay/config"
	"github.com/akinalp/relay/handlers"
	"github.com/akinalp/relay/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Chat     *handlers.ChatHandler
	Message  *handlers.MessageHandler
	User     *handlers.UserHandler
	Presence *handlers.PresenceHandler
	Health   *handlers.HealthHandler
	WS       *ws.Handler
}

// initHandlers, handler'ları service ve rate limiter dependency'leri ile oluşturur.
func initHandlers(
	svcs *Services,
	limiters *RateLimiters,
	hub *ws.Hub,
	db handlers.Pinger,
	cfg *config.Config,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		Auth:     handlers.NewAuthHandler(svcs.Auth, limiters.Login),
		Chat:     handlers.NewChatHandler(svcs.Chat),
		Message:  handlers.NewMessageHandler(svcs.Message, limiters.Send),
		User:     handlers.NewUserHandler(svcs.User),
		Presence: handlers.NewPresenceHandler(svcs.Presence, limiters.Typing),
		Health:   handlers.NewHealthHandler(db, hub),
		WS:       ws.NewHandler(hub, svcs.Auth, cfg.CORS.AllowedOrigins, logger),
	}
}
