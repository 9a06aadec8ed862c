// Package main: HTTP route registration.
//
// initRoutes, tüm API endpoint'lerini mux'a bağlar.
// Korumalı route'lar şu zinciri kullanır:
//
//	SocketID → AuthMiddleware.Require → LastSeenMiddleware.Touch → handler
package main

import (
	"net/http"

	"github.com/akinalp/relay/middleware"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Route sıralama: Go 1.22+ mux'ı en spesifik pattern'i seçer, bu yüzden
// "/api/messages/{id}/all" ile "/api/messages/{id}" çakışmaz.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	authMw *middleware.AuthMiddleware,
	lastSeenMw *middleware.LastSeenMiddleware,
) {
	// ─── Middleware Chain Helpers ───
	public := func(handler http.HandlerFunc) http.Handler {
		return middleware.SocketID(handler)
	}
	auth := func(handler http.HandlerFunc) http.Handler {
		return middleware.SocketID(authMw.Require(lastSeenMw.Touch(handler)))
	}

	// Auth
	mux.Handle("POST /api/auth/register", public(h.Auth.Register))
	mux.Handle("POST /api/auth/login", public(h.Auth.Login))
	mux.Handle("POST /api/auth/refresh", public(h.Auth.Refresh))
	mux.Handle("POST /api/auth/logout", auth(h.Auth.Logout))
	mux.Handle("GET /api/auth/me", auth(h.Auth.Me))
	mux.Handle("POST /api/auth/ping", auth(h.Presence.Ping))

	// Chats
	mux.Handle("POST /api/chats/private", auth(h.Chat.CreatePrivate))
	mux.Handle("POST /api/chats/group", auth(h.Chat.CreateGroup))
	mux.Handle("GET /api/chats", auth(h.Chat.List))
	mux.Handle("GET /api/chats/{id}", auth(h.Chat.Get))
	mux.Handle("DELETE /api/chats/{id}", auth(h.Chat.Delete))
	mux.Handle("POST /api/chats/{id}/users", auth(h.Chat.AddUser))
	mux.Handle("POST /api/chats/{id}/read", auth(h.Chat.MarkRead))
	mux.Handle("POST /api/chats/{id}/typing", auth(h.Presence.Typing))

	// Messages
	mux.Handle("GET /api/chats/{id}/messages", auth(h.Message.List))
	mux.Handle("POST /api/chats/{id}/messages", auth(h.Message.Send))
	mux.Handle("GET /api/chats/{id}/messages/search", auth(h.Message.Search))
	mux.Handle("DELETE /api/messages/{id}", auth(h.Message.Hide))
	mux.Handle("DELETE /api/messages/{id}/all", auth(h.Message.DeleteForAll))
	mux.Handle("POST /api/messages/{id}/forward", auth(h.Message.Forward))

	// Users
	mux.Handle("GET /api/users/search", auth(h.User.Search))
	mux.Handle("PUT /api/profile", auth(h.User.UpdateProfile))

	// Health
	mux.HandleFunc("GET /api/health", h.Health.Check)

	// WebSocket: tarayıcılar upgrade sırasında custom header gönderemez,
	// token "?token=" query parametresiyle gelir ve handler kendisi doğrular.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
