// Package dbtest, testler için migration'ları uygulanmış geçici bir SQLite
// veritabanı açar.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akinalp/relay/database"
)

// New, t.TempDir() altında yeni bir veritabanı oluşturur.
// Test bitince bağlantı kapanır, dizin silinir.
func New(t testing.TB) *database.DB {
	t.Helper()

	migrations, err := database.Migrations()
	require.NoError(t, err)

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), migrations, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}
