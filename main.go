// Package main, relay sunucusunun giriş noktasıdır.
//
// Bu dosyanın görevi Dependency Injection "wire-up":
//  1. Config + logger
//  2. Database (migration'lar binary'ye gömülü)
//  3. Mesaj codec'i + repository'ler
//  4. kv backend'leri (Redis veya in-memory)
//  5. WebSocket Hub + opsiyonel Redis köprüsü / Kafka sink
//  6. Service'ler, handler'lar, middleware, route'lar
//  7. HTTP Server + graceful shutdown
//
// Global değişken YOK. Her şey bu fonksiyonda oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/akinalp/relay/config"
	"github.com/akinalp/relay/database"
	"github.com/akinalp/relay/middleware"
	"github.com/akinalp/relay/pkg/crypto"
	"github.com/akinalp/relay/pkg/logger"
	"github.com/akinalp/relay/services"
	"github.com/akinalp/relay/ws"
)

const sessionCleanupInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─── 1. Config + Logger ───
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Development: cfg.Log.Development, Level: cfg.Log.Level})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("relay server starting", zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── 2. Database ───
	migrations, err := database.Migrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	db, err := database.New(cfg.Database.Path, migrations, log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	// ─── 3. Codec + Repositories ───
	codec, err := crypto.NewAESCodec(cfg.Crypto.MessageKey)
	if err != nil {
		return fmt.Errorf("init message codec: %w", err)
	}
	repos := initRepositories(db.Conn, codec)

	// ─── 4. kv backends ───
	backends := initBackends(ctx, cfg.Redis, log)
	defer backends.Close()

	// ─── 5. WebSocket Hub ───
	//
	// Hub abonelik yetkisini ChatService'e sorar, ChatService de Hub'a yayın yapar.
	// Döngüyü kırmak için authorizer closure'ı servis oluşturulduktan sonra dolan
	// değişkeni okur. Run() servislerden sonra başlatıldığı için nil okunmaz.
	var chatService services.ChatService
	hub := ws.NewHub(func(ctx context.Context, userID int64, channel string) (bool, error) {
		return chatService.CanSubscribe(ctx, userID, channel)
	}, log)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	if backends.Redis != nil {
		bridge := ws.NewRedisBridge(backends.Redis, hub, log)
		go bridge.Run(bgCtx)
		log.Info("redis event bridge enabled", zap.String("instance", hub.InstanceID()))
	}

	var sink *ws.KafkaSink
	if cfg.Kafka.Enabled() {
		sink = ws.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, hub, log)
		go sink.Run(bgCtx)
		log.Info("kafka event sink enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// ─── 6. Services, Handlers, Routes ───
	svcs, limiters := initServices(db.Conn, codec, repos, backends, hub, cfg, log)
	defer limiters.Close()
	chatService = svcs.Chat

	registerHubCallbacks(hub, svcs.Presence, repos.User, log)
	go hub.Run()

	h := initHandlers(svcs, limiters, hub, db.Conn, cfg, log)

	authMw := middleware.NewAuthMiddleware(svcs.Auth, repos.User)
	lastSeenMw := middleware.NewLastSeenMiddleware(repos.User, middleware.DefaultLastSeenInterval, log)
	defer lastSeenMw.Close()

	mux := http.NewServeMux()
	initRoutes(mux, h, authMw, lastSeenMw)

	go cleanupSessions(bgCtx, svcs.Auth, log)

	// ─── 7. CORS ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.CORS.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.SocketIDHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	// ─── 8. HTTP Server ───
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// ─── 9. Graceful Shutdown ───
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			hub.Shutdown()
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Önce WebSocket bağlantıları kapanır, sonra HTTP server mevcut isteklerin
	// bitmesini bekler. Köprü ve sink en son durur; sink kuyruğunu boşaltarak kapanır.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}

	cancelBg()
	if sink != nil {
		select {
		case <-sink.Done():
		case <-shutdownCtx.Done():
			log.Warn("kafka sink did not stop in time")
		}
	}

	log.Info("server stopped gracefully")
	return nil
}

// cleanupSessions, süresi dolmuş refresh token'ları periyodik olarak siler.
func cleanupSessions(ctx context.Context, auth services.AuthService, log *zap.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := auth.CleanupExpiredSessions(ctx)
			if err != nil {
				log.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}

// corsOrigins, boş listeyi "tüm origin'ler" olarak yorumlar.
func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
