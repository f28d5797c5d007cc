// Package store holds the SQL access functions. Every function takes a
// sqlx.ExtContext so it can run against the pool or inside a transaction,
// and returns nil (without error) when the requested row does not exist.
package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// now returns the timestamp stored for writes. UTC keeps the text
// representation used by SQLite sortable.
func now() time.Time {
	return time.Now().UTC()
}

// toCents converts a price to whole cents, rounding half away from zero.
func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// fromCents converts whole cents back to a decimal price.
func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// MaxAmount is the largest price or total that fits in int64 cents.
var MaxAmount = fromCents(math.MaxInt64)

// isUniqueViolation reports whether err is a unique constraint failure on
// either supported database.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}

// timestampLayouts are the text forms SQLite may return for DATETIME
// columns, most specific first.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// timestamp scans a DATETIME column whether the driver returns it as a
// time.Time or, for expressions and RETURNING clauses, as text.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// nullable turns an optional string into a driver value.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
