package repository

import (
	"context"
	"time"

	"github.com/akinalp/relay/models"
)

// ChatRepository, sohbet ve üyelik (chat_user) işlemleri için interface.
//
// Birden fazla adımdan oluşan akışlar (private sohbet oluşturma, grup oluşturma)
// service katmanında database.WithTx içinde, tx-bound repository ile yürütülür.
type ChatRepository interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id int64) (*models.Chat, error)
	GetWithMembers(ctx context.Context, id int64) (*models.ChatWithMembers, error)
	// ListForUser, kullanıcının üye olduğu tüm sohbetleri üyeleriyle birlikte döner.
	ListForUser(ctx context.Context, userID int64) ([]models.ChatWithMembers, error)
	ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	Delete(ctx context.Context, id int64) error

	// FindPrivateBetween, iki kullanıcı arasındaki private sohbeti döner (sıra önemsiz).
	FindPrivateBetween(ctx context.Context, userA, userB int64) (*models.Chat, error)
	// ReservePrivatePair, çift için tekil satırı yazar. Çift zaten varsa ErrAlreadyExists.
	ReservePrivatePair(ctx context.Context, chatID, userA, userB int64) error

	// AddMember, üyeliği ekler. Üye zaten varsa hiçbir şey yapmaz ve false döner.
	AddMember(ctx context.Context, chatID, userID int64, role models.MemberRole, joinedAt time.Time) (bool, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	GetMembership(ctx context.Context, chatID, userID int64) (*models.Membership, error)
	MemberIDs(ctx context.Context, chatID int64) ([]int64, error)
	ListMembers(ctx context.Context, chatID int64) ([]models.ChatMember, error)

	// UpdateReadCursor, okuma imlecini ileri taşır (asla geri almaz) ve
	// sohbete özel last_seen_at'i günceller.
	UpdateReadCursor(ctx context.Context, chatID, userID, messageID int64, seenAt time.Time) error
}
