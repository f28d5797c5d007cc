package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "schema.sqlite3"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := EnsureSchema(db); err != nil {
			t.Fatalf("EnsureSchema (run %d): %v", i+1, err)
		}
	}

	if IsPostgres(db) {
		t.Error("sqlite handle reported as postgres")
	}
	if ForUpdate(db) != "" {
		t.Error("expected no row-lock clause for sqlite")
	}
}

func TestInTxCommitAndRollback(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	err := InTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO settings (key, value) VALUES ('a', '1')`)
		return err
	})
	if err != nil {
		t.Fatalf("InTx commit: %v", err)
	}

	boom := errors.New("boom")
	err = InTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO settings (key, value) VALUES ('b', '2')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to be returned, got %v", err)
	}

	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM settings`); err != nil {
		t.Fatalf("counting settings: %v", err)
	}
	if count != 1 {
		t.Errorf("expected rolled back insert to be absent, got %d rows", count)
	}
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	db := NewTestDB(t)

	func() {
		defer func() { recover() }()
		InTx(context.Background(), db, func(tx *sqlx.Tx) error {
			tx.Exec(`INSERT INTO settings (key, value) VALUES ('p', '1')`)
			panic("boom")
		})
	}()

	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM settings`); err != nil {
		t.Fatalf("counting settings: %v", err)
	}
	if count != 0 {
		t.Errorf("expected panic to roll back, got %d rows", count)
	}
}
