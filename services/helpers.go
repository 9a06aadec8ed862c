package services

import (
	"context"
	"fmt"
	"time"

	"github.com/akinalp/relay/models"
	"github.com/akinalp/relay/pkg"
	"github.com/akinalp/relay/repository"
	"github.com/akinalp/relay/ws"
)

// DefaultEphemeralTimeout, presence/typing/cache çağrıları için varsayılan süre.
const DefaultEphemeralTimeout = 250 * time.Millisecond

// ephemeral, kv çağrıları için kısa timeout'lu context döner.
// Bu çağrılar tavsiye niteliğindedir; hata kullanıcıya dönmez.
func ephemeral(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultEphemeralTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// assertMember, kullanıcı sohbette değilse pkg.ErrNotAMember döner.
func assertMember(ctx context.Context, chats repository.ChatRepository, chatID, userID int64) error {
	ok, err := chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: chat %d", pkg.ErrNotAMember, chatID)
	}
	return nil
}

// nameOrEmail, event payload'larındaki "name" alanı: ad yoksa email.
func nameOrEmail(u *models.User) *string {
	if u.Name != nil && *u.Name != "" {
		return u.Name
	}
	email := u.Email
	return &email
}

func chatRef(chat *models.ChatWithMembers) ws.ChatRef {
	return ws.ChatRef{
		ID:    chat.ID,
		Type:  chat.Type,
		Title: chat.Title,
		Users: chat.Users,
	}
}

// clamp, v'yi [lo, hi] aralığına çeker; v <= 0 ise def döner.
func clamp(v, def, lo, hi int) int {
	if v <= 0 {
		return def
	}
	return max(lo, min(v, hi))
}
