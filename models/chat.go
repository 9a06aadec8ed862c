package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akinalp/relay/pkg"
)

// ChatType, sohbetin türü. Private sohbette tam olarak 2 farklı üye bulunur.
type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
)

// MemberRole, üyenin sohbetteki rolü.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// Chat, bir sohbeti temsil eder. Title private sohbette nil'dir.
type Chat struct {
	ID        int64     `json:"id"`
	Type      ChatType  `json:"type"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMember, bir sohbet üyesi: kullanıcı bilgisi + üyelik (pivot) alanları.
//
// Online ve LastSeenAt presence tracker'dan doldurulur: kullanıcı online ise
// LastSeenAt presence zamanıdır, değilse users.last_seen_at.
type ChatMember struct {
	ID                int64      `json:"id"`
	Nickname          string     `json:"nickname"`
	Name              *string    `json:"name"`
	LastName          *string    `json:"last_name"`
	Email             string     `json:"email"`
	Role              MemberRole `json:"role"`
	JoinedAt          time.Time  `json:"joined_at"`
	LastReadMessageID *int64     `json:"last_read_message_id"`
	LastSeenAt        *time.Time `json:"last_seen_at"`
	Online            bool       `json:"online"`

	// ChatLastSeenAt, chat_user.last_seen_at: sohbete özel son aktivite.
	// Okundu bayrağı hesabında kullanılır, API'ye gönderilmez.
	ChatLastSeenAt *time.Time `json:"-"`
}

// User, üyeyi User modeline çevirir (label hesabı vb. için).
func (m *ChatMember) User() *User {
	return &User{
		ID:         m.ID,
		Nickname:   m.Nickname,
		Name:       m.Name,
		LastName:   m.LastName,
		Email:      m.Email,
		LastSeenAt: m.LastSeenAt,
	}
}

// ChatWithMembers, sohbet + üye listesi.
type ChatWithMembers struct {
	Chat
	Users []ChatMember `json:"users"`
}

// MemberIDs, sohbetteki tüm üyelerin ID'lerini döner.
func (c *ChatWithMembers) MemberIDs() []int64 {
	ids := make([]int64, 0, len(c.Users))
	for _, u := range c.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

// TypingUser, o an yazmakta olan kullanıcı.
type TypingUser struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// ChatDetail, GET /api/chats/{id} yanıtı.
type ChatDetail struct {
	ChatWithMembers
	TypingUsers []TypingUser `json:"typing_users"`
}

// ChatSummary, sohbet listesindeki tek satır: sohbet, son görünür mesaj ve okunmamış sayısı.
// Bu yapı özet cache'inde JSON olarak saklanır.
type ChatSummary struct {
	Chat        ChatWithMembers `json:"chat"`
	LastMessage *Message        `json:"last_message"`
	UnreadCount int             `json:"unread_count"`
}

// Membership, chat_user satırı.
type Membership struct {
	ChatID            int64
	UserID            int64
	Role              MemberRole
	JoinedAt          time.Time
	LastReadMessageID *int64
	LastSeenAt        *time.Time
}

// CreatePrivateChatRequest, POST /api/chats/private.
type CreatePrivateChatRequest struct {
	UserID int64 `json:"user_id"`
}

// Validate, hedef kullanıcı ID'sinin varlığını kontrol eder.
func (r *CreatePrivateChatRequest) Validate() error {
	if r.UserID <= 0 {
		return pkg.NewValidationError("user_id", "user_id is required")
	}
	return nil
}

// CreateGroupChatRequest, POST /api/chats/group.
type CreateGroupChatRequest struct {
	Title     string   `json:"title"`
	Nicknames []string `json:"nicknames"`
}

// Validate, başlığı ve nickname listesini kontrol eder.
func (r *CreateGroupChatRequest) Validate() error {
	verr := &pkg.ValidationError{}

	r.Title = strings.TrimSpace(r.Title)
	switch {
	case r.Title == "":
		verr.Add("title", "title is required")
	case utf8.RuneCountInString(r.Title) > 255:
		verr.Add("title", "title must be at most 255 characters")
	}

	cleaned := make([]string, 0, len(r.Nicknames))
	for _, n := range r.Nicknames {
		n = strings.TrimPrefix(strings.TrimSpace(n), "@")
		if n != "" {
			cleaned = append(cleaned, n)
		}
	}
	r.Nicknames = cleaned
	if len(r.Nicknames) == 0 {
		verr.Add("nicknames", "at least one nickname is required")
	}

	return verr.OrNil()
}

// AddChatUserRequest, POST /api/chats/{id}/users.
type AddChatUserRequest struct {
	Nickname string `json:"nickname"`
}

// Validate, nickname'i normalize eder.
func (r *AddChatUserRequest) Validate() error {
	r.Nickname = strings.TrimPrefix(strings.TrimSpace(r.Nickname), "@")
	if r.Nickname == "" {
		return pkg.NewValidationError("nickname", "nickname is required")
	}
	return nil
}

// MarkReadRequest, POST /api/chats/{id}/read. MessageID nil ise
// başkalarından gelen en yeni mesaja kadar okundu işaretlenir.
type MarkReadRequest struct {
	MessageID *int64 `json:"message_id"`
}
