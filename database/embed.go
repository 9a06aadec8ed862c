// Package database embed dosyası: migration SQL dosyalarını binary'ye gömer.
// Deploy edilen binary yanında migration dosyalarına ihtiyaç duymaz.
package database

import (
	"embed"
	"io/fs"
)

// EmbeddedMigrations, migrations/ dizinindeki SQL dosyalarını içerir.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS

// Migrations, migrations/ alt dizinini kök olarak gösteren fs.FS döner.
func Migrations() (fs.FS, error) {
	return fs.Sub(EmbeddedMigrations, "migrations")
}
