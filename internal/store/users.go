package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sweetshop/internal/model"
)

const userColumns = `id, email, name, password_hash, created_at`

type userRow struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    timestamp `db:"created_at"`
}

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.Time,
	}
}

// CreateUser creates a new account. A taken email yields ErrDuplicate.
func CreateUser(ctx context.Context, q sqlx.ExtContext, email, name, passwordHash string) (*model.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(
		`INSERT INTO users (email, name, password_hash, created_at) VALUES (?, ?, ?, ?)
		 RETURNING `+userColumns),
		email, name, passwordHash, now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("creating user: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return row.toModel(), nil
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q sqlx.ExtContext, id int64) (*model.User, error) {
	return getUser(ctx, q, `id = ?`, id)
}

// GetUserByEmail returns a user by email address.
func GetUserByEmail(ctx context.Context, q sqlx.ExtContext, email string) (*model.User, error) {
	return getUser(ctx, q, `email = ?`, email)
}

func getUser(ctx context.Context, q sqlx.ExtContext, where string, arg any) (*model.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+userColumns+` FROM users WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return row.toModel(), nil
}
