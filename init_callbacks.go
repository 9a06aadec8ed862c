// Package main: WebSocket Hub callback wire-up.
//
// Hub ws paketinde yaşıyor, presence ve last_seen güncellemesi ise
// service/repo katmanında. Hub'ın service'lere bağımlı olmaması için
// bağlantı burada kurulur.
//
// Callback'ler Hub'ın kendi goroutine'inden ayrı çalışır
// (addClient/removeClient içinde `go callback()`), hub mutex'i tutulmaz.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/services"
	"github.com/akinalp/relay/ws"
)

const callbackTimeout = 5 * time.Second

// registerHubCallbacks, presence callback'lerini register eder.
//
//   - İlk bağlantı: presence ping (online işareti + user.online yayını).
//   - Son bağlantı kapandı: last_seen_at güncellenir. Online işareti TTL ile düşer.
func registerHubCallbacks(
	hub *ws.Hub,
	presenceService services.PresenceService,
	userRepo repository.UserRepository,
	logger *zap.Logger,
) {
	log := logger.Named("presence")

	hub.OnUserFirstConnect(func(userID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		if _, err := presenceService.Ping(ctx, userID); err != nil {
			log.Warn("failed to mark user online", zap.Int64("user_id", userID), zap.Error(err))
			return
		}
		log.Debug("user connected", zap.Int64("user_id", userID))
	})

	hub.OnUserFullyDisconnected(func(userID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()

		if err := userRepo.UpdateLastSeen(ctx, userID, time.Now().UTC()); err != nil {
			log.Warn("failed to update last seen", zap.Int64("user_id", userID), zap.Error(err))
			return
		}
		log.Debug("user disconnected", zap.Int64("user_id", userID))
	})
}
