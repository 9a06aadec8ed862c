// Package repository, veritabanı erişim katmanını tanımlar.
//
// Service katmanı doğrudan SQL yazmaz, bu paketteki interface'ler üzerinden
// çalışır. Her interface'in SQLite implementasyonu sqlite_*.go dosyalarındadır;
// constructor'lar database.TxQuerier alır, böylece aynı repository hem *sql.DB
// hem *sql.Tx ile kullanılabilir.
package repository

import (
	"context"
	"time"

	"github.com/akinalp/relay/models"
)

// UserRepository, kullanıcı veritabanı işlemleri için interface.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.User, error)
	GetByNickname(ctx context.Context, nickname string) (*models.User, error)
	// IDsByNicknames, bulunan nickname'lerin ID'lerini döner; bulunamayanlar sessizce atlanır.
	IDsByNicknames(ctx context.Context, nicknames []string) ([]int64, error)
	// SearchByNickname, nickname'de geçen term'e göre (case-insensitive) arar, excludeID hariç.
	SearchByNickname(ctx context.Context, term string, excludeID int64, limit int) ([]models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateLastSeen(ctx context.Context, userID int64, at time.Time) error
}
