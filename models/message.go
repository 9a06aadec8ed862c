package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akinalp/relay/pkg"
)

// MaxMessageBodyLength, mesaj gövdesinin karakter sınırı.
const MaxMessageBodyLength = 2000

// Message, bir sohbet mesajı.
//
// Body repository sınırında çözülmüş düz metindir; DB'de şifreli durur.
// ID global ve monoton artar, sohbet içi sıralama otoritesidir.
type Message struct {
	ID        int64        `json:"id"`
	ChatID    int64        `json:"chat_id"`
	UserID    int64        `json:"user_id"`
	Body      string       `json:"body"`
	CreatedAt time.Time    `json:"created_at"`
	Sender    *UserSummary `json:"sender,omitempty"`
	Read      bool         `json:"read"`

	DeletedForAllAt *time.Time `json:"-"`

	ForwardFromMessageID *int64 `json:"forward_from_message_id,omitempty"`
	ForwardFromUserID    *int64 `json:"forward_from_user_id,omitempty"`
	ForwardFromChatID    *int64 `json:"forward_from_chat_id,omitempty"`
}

// IsDeletedForAll, mesaj herkes için silinmişse true döner.
func (m *Message) IsDeletedForAll() bool {
	return m.DeletedForAllAt != nil
}

// MessagePage, sayfalanmış mesaj listesi. Data en yeniden eskiye sıralıdır.
type MessagePage struct {
	Data        []Message `json:"data"`
	CurrentPage int       `json:"current_page"`
	PerPage     int       `json:"per_page"`
	Total       int       `json:"total"`
	LastPage    int       `json:"last_page"`
}

// SendMessageRequest, POST /api/chats/{id}/messages.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// Validate, gövdenin boş olmadığını ve sınırı aşmadığını kontrol eder.
func (r *SendMessageRequest) Validate() error {
	if strings.TrimSpace(r.Body) == "" {
		return pkg.NewValidationError("body", "body is required")
	}
	if utf8.RuneCountInString(r.Body) > MaxMessageBodyLength {
		return pkg.NewValidationError("body", "body must be at most 2000 characters")
	}
	return nil
}

// ForwardMessageRequest, POST /api/messages/{id}/forward.
type ForwardMessageRequest struct {
	ChatID int64 `json:"chat_id"`
}

// Validate, hedef sohbetin belirtildiğini kontrol eder.
func (r *ForwardMessageRequest) Validate() error {
	if r.ChatID <= 0 {
		return pkg.NewValidationError("chat_id", "chat_id is required")
	}
	return nil
}
