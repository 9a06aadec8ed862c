// Package main: Repository katmanı başlatma.
//
// initRepositories, tüm repository implementasyonlarını oluşturur.
// Her repository aynı *sql.DB'yi alır ve interface döner.
package main

import (
	"database/sql"

	"github.com/akinalp/relay/pkg/crypto"
	"github.com/akinalp/relay/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	User    repository.UserRepository
	Session repository.SessionRepository
	Chat    repository.ChatRepository
	Message repository.MessageRepository
}

// initRepositories, veritabanı bağlantısından repository'leri oluşturur.
// Mesaj gövdeleri codec ile şifrelenerek saklanır.
func initRepositories(conn *sql.DB, codec crypto.BodyCodec) *Repositories {
	return &Repositories{
		User:    repository.NewSQLiteUserRepo(conn),
		Session: repository.NewSQLiteSessionRepo(conn),
		Chat:    repository.NewSQLiteChatRepo(conn),
		Message: repository.NewSQLiteMessageRepo(conn, codec),
	}
}
