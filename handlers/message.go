package handlers

import (
	"net/http"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/pkg/ratelimit"
	"github.com/akinalp/relay/services"
)

// MessageHandler, mesaj endpoint'lerini yöneten struct.
type MessageHandler struct {
	messageService services.MessageService
	sendLimiter    *ratelimit.Limiter[int64]
}

// NewMessageHandler, constructor.
// sendLimiter: kullanıcı başına mesaj gönderme limiti (send + forward). nil ise devre dışı.
func NewMessageHandler(messageService services.MessageService, sendLimiter *ratelimit.Limiter[int64]) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		sendLimiter:    sendLimiter,
	}
}

// List godoc
// GET /api/chats/{id}/messages?page=1&per_page=10
// En yeniden eskiye, sayfalı. per_page varsayılan 10, en fazla 100.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	page, err := h.messageService.List(r.Context(), chatID, user.ID, queryInt(r, "page"), queryInt(r, "per_page"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, page)
}

// Send godoc
// POST /api/chats/{id}/messages
// Body: { "body": "mesaj metni" }
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allow(w, user.ID) {
		return
	}

	var req models.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.messageService.Send(r.Context(), chatID, user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, msg)
}

// Search godoc
// GET /api/chats/{id}/messages/search?query=...&limit=20
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	messages, err := h.messageService.Search(r.Context(), chatID, user.ID, r.URL.Query().Get("query"), queryInt(r, "limit"))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, messages)
}

// Hide godoc
// DELETE /api/messages/{id}
// Mesajı sadece isteği yapan kullanıcı için gizler.
func (h *MessageHandler) Hide(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.messageService.HideForUser(r.Context(), messageID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.NoContent(w)
}

// DeleteForAll godoc
// DELETE /api/messages/{id}/all
// Sadece yazarı yapabilir.
func (h *MessageHandler) DeleteForAll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.messageService.DeleteForAll(r.Context(), messageID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.NoContent(w)
}

// Forward godoc
// POST /api/messages/{id}/forward
// Body: { "chat_id": 7 }
func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	messageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.allow(w, user.ID) {
		return
	}

	var req models.ForwardMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.messageService.Forward(r.Context(), messageID, user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) allow(w http.ResponseWriter, userID int64) bool {
	if h.sendLimiter == nil {
		return true
	}
	if ok, retry := h.sendLimiter.Allow(userID); !ok {
		tooManyRequests(w, retry, "you are sending messages too fast")
		return false
	}
	return true
}
