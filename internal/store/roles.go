package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sweetshop/internal/model"
)

type roleRow struct {
	UserID    int64     `db:"user_id"`
	IsAdmin   bool      `db:"is_admin"`
	CreatedAt timestamp `db:"created_at"`
	UpdatedAt timestamp `db:"updated_at"`
}

func (r roleRow) toModel() *model.Role {
	return &model.Role{
		UserID:    r.UserID,
		IsAdmin:   r.IsAdmin,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

// GetRole returns a user's role record, or nil if the user was never promoted.
func GetRole(ctx context.Context, q sqlx.ExtContext, userID int64) (*model.Role, error) {
	var row roleRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(
		`SELECT user_id, is_admin, created_at, updated_at FROM user_roles WHERE user_id = ?`),
		userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting role: %w", err)
	}
	return row.toModel(), nil
}

// SetAdmin upserts the admin flag for a user. Repeated calls update the one
// existing record in place.
func SetAdmin(ctx context.Context, q sqlx.ExtContext, userID int64, isAdmin bool) (*model.Role, error) {
	ts := now()
	var row roleRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(
		`INSERT INTO user_roles (user_id, is_admin, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET is_admin = excluded.is_admin, updated_at = excluded.updated_at
		 RETURNING user_id, is_admin, created_at, updated_at`),
		userID, isAdmin, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("setting role: %w", err)
	}
	return row.toModel(), nil
}
