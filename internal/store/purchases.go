package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/erazemk/sweetshop/internal/model"
)

const purchaseColumns = `id, user_id, sweet_id, quantity, total_cents, created_at`

type purchaseRow struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	ItemID     int64     `db:"sweet_id"`
	Quantity   int       `db:"quantity"`
	TotalCents int64     `db:"total_cents"`
	CreatedAt  timestamp `db:"created_at"`
}

func (r purchaseRow) toModel() model.Purchase {
	return model.Purchase{
		ID:         r.ID,
		UserID:     r.UserID,
		ItemID:     r.ItemID,
		Quantity:   r.Quantity,
		TotalPrice: fromCents(r.TotalCents),
		CreatedAt:  r.CreatedAt.Time,
	}
}

// InsertPurchase appends a purchase to the ledger.
func InsertPurchase(ctx context.Context, q sqlx.ExtContext, userID, itemID int64, quantity int, total decimal.Decimal) (*model.Purchase, error) {
	var row purchaseRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(
		`INSERT INTO purchases (user_id, sweet_id, quantity, total_cents, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING `+purchaseColumns),
		userID, itemID, quantity, toCents(total), now(),
	)
	if err != nil {
		return nil, fmt.Errorf("recording purchase: %w", err)
	}
	p := row.toModel()
	return &p, nil
}

// ListPurchasesByItem returns the purchases recorded against an item id,
// newest first. Purchases of deleted items are still returned.
func ListPurchasesByItem(ctx context.Context, q sqlx.ExtContext, itemID int64) ([]model.Purchase, error) {
	return listPurchases(ctx, q, `sweet_id = ?`, itemID)
}

// ListPurchasesByUser returns a user's purchases, newest first.
func ListPurchasesByUser(ctx context.Context, q sqlx.ExtContext, userID int64) ([]model.Purchase, error) {
	return listPurchases(ctx, q, `user_id = ?`, userID)
}

func listPurchases(ctx context.Context, q sqlx.ExtContext, where string, arg any) ([]model.Purchase, error) {
	var rows []purchaseRow
	err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(
		`SELECT `+purchaseColumns+` FROM purchases WHERE `+where+` ORDER BY created_at DESC, id DESC`),
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}

	purchases := make([]model.Purchase, 0, len(rows))
	for _, r := range rows {
		purchases = append(purchases, r.toModel())
	}
	return purchases, nil
}
