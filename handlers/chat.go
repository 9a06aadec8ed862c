package handlers

import (
	"net/http"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/services"
)

// ChatHandler, sohbet endpoint'lerini yöneten struct.
type ChatHandler struct {
	chatService services.ChatService
}

// NewChatHandler, constructor.
func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// existingChatResponse, private sohbet zaten varsa 409 ile dönen gövde.
type existingChatResponse struct {
	ChatID int64                   `json:"chat_id"`
	Chat   *models.ChatWithMembers `json:"chat"`
}

// CreatePrivate godoc
// POST /api/chats/private
// Body: { "user_id": 5 }
//
// Get-or-create: yeni oluşturulduysa 200, zaten varsa 409 + mevcut sohbet.
// 409 burada hata değildir; client mevcut sohbete yönlenir.
func (h *ChatHandler) CreatePrivate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreatePrivateChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.Error(w, err)
		return
	}

	chat, created, err := h.chatService.CreatePrivate(r.Context(), user.ID, req.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	if !created {
		pkg.JSON(w, http.StatusConflict, existingChatResponse{ChatID: chat.ID, Chat: chat})
		return
	}
	pkg.JSON(w, http.StatusOK, chat)
}

// CreateGroup godoc
// POST /api/chats/group
// Body: { "title": "...", "nicknames": ["bob", "@carol"] }
func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req models.CreateGroupChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, err := h.chatService.CreateGroup(r.Context(), user.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, chat)
}

// List godoc
// GET /api/chats
// Son aktiviteye göre sıralı sohbetler; son mesaj ve okunmamış sayısıyla.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	chats, err := h.chatService.ListChats(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, chats)
}

// Get godoc
// GET /api/chats/{id}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.chatService.GetChat(r.Context(), chatID, user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, detail)
}

// Delete godoc
// DELETE /api/chats/{id}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.chatService.DeleteChat(r.Context(), chatID, user.ID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.NoContent(w)
}

// AddUser godoc
// POST /api/chats/{id}/users
// Body: { "nickname": "carol" }
func (h *ChatHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.AddChatUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.Error(w, err)
		return
	}

	chat, err := h.chatService.AddMemberByNickname(r.Context(), chatID, user.ID, req.Nickname)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, chat)
}

// MarkRead godoc
// POST /api/chats/{id}/read
// Body (opsiyonel): { "message_id": 42 }
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	chatID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req models.MarkReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.chatService.MarkRead(r.Context(), chatID, user.ID, req.MessageID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.NoContent(w)
}
