package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// pgxDriver is the database/sql name registered by pgx/v5/stdlib.
const pgxDriver = "pgx"

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open opens a database connection for the given driver. For SQLite the
// source is a file path, for Postgres a connection URL.
func Open(driver, source string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(source)
	case DriverPostgres:
		return openPostgres(source)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// openSQLite opens a SQLite database. Pragmas are passed in the DSN so that
// every pooled connection gets them, and transactions start with
// BEGIN IMMEDIATE so a read-check-write sequence holds the write lock
// from its first statement.
func openSQLite(path string) (*sqlx.DB, error) {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Set("_txlock", "immediate")
	params.Set("_time_format", "sqlite")

	db, err := sqlx.Open(DriverSQLite, "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func openPostgres(dsn string) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, pgxDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	return db, nil
}

// IsPostgres reports whether the handle talks to Postgres.
func IsPostgres(q interface{ DriverName() string }) bool {
	return q.DriverName() == pgxDriver
}

// ForUpdate returns the row-locking clause for SELECTs inside a transaction.
// SQLite has no row locks; its transactions already hold the database write
// lock (see openSQLite).
func ForUpdate(q interface{ DriverName() string }) string {
	if IsPostgres(q) {
		return " FOR UPDATE"
	}
	return ""
}
