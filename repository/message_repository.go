package repository

import (
	"context"
	"time"

	"github.com/akinalp/relay/models"
)

// MessageRepository, mesaj ve mesaj tombstone işlemleri için interface.
//
// "Görünür" mesaj: herkes için silinmemiş VE izleyen kullanıcı tarafından
// gizlenmemiş mesaj. List/Search/LastVisible yalnızca görünür mesajları döner.
type MessageRepository interface {
	// Create, mesajı ekler; body codec ile şifrelenerek yazılır.
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.Message, error)

	ListVisible(ctx context.Context, chatID, viewerID int64, limit, offset int) ([]models.Message, error)
	CountVisible(ctx context.Context, chatID, viewerID int64) (int, error)
	// SearchVisible, çözülmüş gövdede case-insensitive substring araması yapar.
	SearchVisible(ctx context.Context, chatID, viewerID int64, term string, limit int) ([]models.Message, error)
	// LastVisible, sohbetteki en yeni görünür mesajı döner; yoksa (nil, nil).
	LastVisible(ctx context.Context, chatID, viewerID int64) (*models.Message, error)

	// CountUnread, imleçten sonraki (imleç nil ise tümü), başkalarından gelen görünür mesajları sayar.
	CountUnread(ctx context.Context, chatID, userID int64, cursor *int64) (int, error)
	// MaxIncomingID, başkalarından gelen en büyük mesaj ID'sini döner; yoksa 0.
	MaxIncomingID(ctx context.Context, chatID, userID int64) (int64, error)

	// HideForUser, kullanıcı bazlı tombstone'u upsert eder.
	HideForUser(ctx context.Context, messageID, userID int64, at time.Time) error
	// MarkDeletedForAll, global tombstone'u yalnızca henüz yoksa yazar.
	// Değişiklik olduysa true döner.
	MarkDeletedForAll(ctx context.Context, messageID int64, at time.Time) (bool, error)
}
