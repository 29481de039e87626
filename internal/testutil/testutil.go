package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/Napageneral/sdr/internal/db"
)

// OpenTestDB opens a fresh sqlite database under t.TempDir with the schema applied.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sdr-test.db")
	conn, err := db.OpenPath("sqlite", path)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.ApplySchema(conn); err != nil {
		conn.Close()
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// CreateUser inserts a bare user row and returns its id.
func CreateUser(t *testing.T, conn *sql.DB, id string) string {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO users (id, name, email, token_hash, created_at, updated_at)
		VALUES (?, ?, NULL, ?, 1, 1)
	`, id, "user "+id, "hash-"+id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

// NewLogger returns a debug-level logger that writes through t.Log.
func NewLogger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel))
}
