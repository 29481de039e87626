package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Napageneral/sdr/internal/config"
)

func TestInitAndOpenWithConfiguredPath(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "sdr.db")

	if err := Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Applying the schema twice must be harmless.
	if err := Init(cfg); err != nil {
		t.Fatalf("Init again: %v", err)
	}

	conn, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	var fk int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM campaigns").Scan(&count); err != nil {
		t.Fatalf("campaigns table missing: %v", err)
	}
}

func TestOpenPathRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenPath("postgres", filepath.Join(t.TempDir(), "x.db")); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenPathMattnDriver(t *testing.T) {
	conn, err := OpenPath("sqlite3", filepath.Join(t.TempDir(), "mattn.db"))
	if err != nil {
		// go-sqlite3 needs cgo.
		t.Skipf("sqlite3 driver unavailable: %v", err)
	}
	defer conn.Close()
	if err := ApplySchema(conn); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
}

func TestGetPathDefault(t *testing.T) {
	t.Setenv("SDR_DATA_DIR", t.TempDir())
	path, err := GetPath(nil)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if filepath.Base(path) != "sdr.db" {
		t.Fatalf("path = %q", path)
	}
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("campaign %s required", "name")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Error() != "campaign name required" {
		t.Fatalf("message = %q", verr.Error())
	}
}

func TestNullString(t *testing.T) {
	if NullString("") != nil {
		t.Fatal("empty string should map to nil")
	}
	if NullString("x") != "x" {
		t.Fatal("non-empty string should pass through")
	}
}
