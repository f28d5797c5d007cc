package inventory

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sweetshop/internal/model"
	"github.com/erazemk/sweetshop/internal/store"
)

// PromoteResult tells whether self-promotion changed anything.
type PromoteResult int

const (
	Promoted PromoteResult = iota
	AlreadyAdmin
)

// Gate decides whether an actor may perform a privileged action.
type Gate struct {
	db *sqlx.DB
}

// NewGate returns a gate reading roles from db.
func NewGate(db *sqlx.DB) *Gate {
	return &Gate{db: db}
}

// RequireAdmin returns nil when the actor is currently an admin. The role
// is read from the store on every call.
func (g *Gate) RequireAdmin(ctx context.Context, a *Actor) error {
	if err := requireActor(a); err != nil {
		return err
	}
	return requireAdmin(ctx, g.db, a.UserID)
}

func requireAdmin(ctx context.Context, q sqlx.ExtContext, userID int64) error {
	role, err := store.GetRole(ctx, q, userID)
	if err != nil {
		return storeErr("checking admin role", err)
	}
	if role == nil || !role.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// Role returns the actor's role. A user who was never promoted gets a
// non-admin role that is not persisted.
func (g *Gate) Role(ctx context.Context, a *Actor) (*model.Role, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	role, err := store.GetRole(ctx, g.db, a.UserID)
	if err != nil {
		return nil, storeErr("getting role", err)
	}
	if role == nil {
		return &model.Role{UserID: a.UserID}, nil
	}
	return role, nil
}

// Promote makes the actor an admin. Only authentication is required, so a
// deployment with no admins can bootstrap one. Repeated calls are no-ops.
func (g *Gate) Promote(ctx context.Context, a *Actor) (PromoteResult, error) {
	if err := requireActor(a); err != nil {
		return 0, err
	}

	role, err := store.GetRole(ctx, g.db, a.UserID)
	if err != nil {
		return 0, storeErr("getting role", err)
	}
	if role != nil && role.IsAdmin {
		return AlreadyAdmin, nil
	}

	if _, err := store.SetAdmin(ctx, g.db, a.UserID, true); err != nil {
		return 0, storeErr("promoting user", err)
	}

	slog.Info("user promoted to admin", "user_id", a.UserID)
	return Promoted, nil
}
