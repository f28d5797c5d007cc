package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// NewTestDB creates a fresh file-backed SQLite database with the schema
// applied. A file is used instead of :memory: so that every connection in
// the pool sees the same database, which the concurrency tests rely on.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}

// NewTestPostgres connects to the database named by
// SWEETSHOP_TEST_POSTGRES_DSN, or skips the test when it is unset. Tables
// are emptied before the test runs.
func NewTestPostgres(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("SWEETSHOP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SWEETSHOP_TEST_POSTGRES_DSN not set")
	}

	db, err := Open(DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		t.Fatalf("creating postgres schema: %v", err)
	}

	if _, err := db.Exec(`TRUNCATE users, user_roles, sweets, purchases, revoked_tokens RESTART IDENTITY`); err != nil {
		db.Close()
		t.Fatalf("truncating postgres tables: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}
