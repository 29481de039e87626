package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Napageneral/sdr/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Init initializes the database and creates tables if needed
func Init(cfg *config.Config) error {
	dbPath, err := GetPath(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := OpenPath(driverName(cfg), dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return ApplySchema(db)
}

// ApplySchema executes the embedded schema. Every statement is idempotent.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Open opens a connection to the configured database
func Open(cfg *config.Config) (*sql.DB, error) {
	dbPath, err := GetPath(cfg)
	if err != nil {
		return nil, err
	}
	return OpenPath(driverName(cfg), dbPath)
}

// OpenPath opens a sqlite database file with the given driver
// ("sqlite" for modernc, "sqlite3" for mattn).
func OpenPath(driver, dbPath string) (*sql.DB, error) {
	// Connection-scoped pragmas go in the DSN so every pooled connection
	// gets them, not just the one the Exec calls below happen to use.
	var dsn string
	switch driver {
	case "", "sqlite":
		driver = "sqlite"
		dsn = dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	case "sqlite3":
		dsn = dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas for performance + concurrency.
	// WAL allows concurrent readers while a writer is active.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// GetPath returns the path to the database file
func GetPath(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	dataDir, err := config.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "sdr.db"), nil
}

func driverName(cfg *config.Config) string {
	if cfg == nil {
		return config.DefaultDriver
	}
	return cfg.Database.Driver
}

// NullString maps "" to NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
