// Package inventory implements the catalog and stock operations of the
// shop. Every operation returns either its result or an error from the
// taxonomy in errors.go; nothing else escapes.
package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/erazemk/sweetshop/internal/db"
	"github.com/erazemk/sweetshop/internal/model"
	"github.com/erazemk/sweetshop/internal/store"
)

// Engine runs stock-changing operations. Purchase and restock hold the
// item exclusively for their read-check-write sequence. On Postgres that is
// a row lock, so different items do not contend; SQLite transactions take
// the database write lock, so there all purchases and restocks serialize.
type Engine struct {
	db   *sqlx.DB
	gate *Gate
}

// NewEngine returns an engine backed by db.
func NewEngine(database *sqlx.DB) *Engine {
	return &Engine{db: database, gate: NewGate(database)}
}

// Gate returns the authorization gate the engine checks privileged calls with.
func (e *Engine) Gate() *Gate {
	return e.gate
}

// List returns items matching the filter, newest first.
func (e *Engine) List(ctx context.Context, f model.ItemFilter) ([]model.Item, error) {
	items, err := store.ListItems(ctx, e.db, f)
	if err != nil {
		return nil, storeErr("listing sweets", err)
	}
	return items, nil
}

// Get returns a single item.
func (e *Engine) Get(ctx context.Context, id int64) (*model.Item, error) {
	item, err := store.GetItem(ctx, e.db, id)
	if err != nil {
		return nil, storeErr("getting sweet", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// Create adds an item. Any authenticated actor may create.
func (e *Engine) Create(ctx context.Context, a *Actor, in CreateItemInput) (*model.Item, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	fields, err := in.normalize()
	if err != nil {
		return nil, err
	}

	item, err := store.CreateItem(ctx, e.db, fields)
	if err != nil {
		return nil, storeErr("creating sweet", err)
	}

	slog.Info("sweet created", "sweet_id", item.ID, "user_id", a.UserID)
	return item, nil
}

// Update applies a partial update. Any authenticated actor may update.
func (e *Engine) Update(ctx context.Context, a *Actor, id int64, in UpdateItemInput) (*model.Item, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	fields, err := in.normalize()
	if err != nil {
		return nil, err
	}

	item, err := store.UpdateItem(ctx, e.db, id, fields)
	if err != nil {
		return nil, storeErr("updating sweet", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// Delete removes an item and returns its last state. Admin only.
// Purchases of the item are kept.
func (e *Engine) Delete(ctx context.Context, a *Actor, id int64) (*model.Item, error) {
	if err := e.gate.RequireAdmin(ctx, a); err != nil {
		return nil, err
	}

	item, err := store.DeleteItem(ctx, e.db, id)
	if err != nil {
		return nil, storeErr("deleting sweet", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}

	slog.Info("sweet deleted", "sweet_id", id, "user_id", a.UserID)
	return item, nil
}

// Purchase sells qty units of an item to the actor. The stock check, the
// decrement and the ledger insert commit together or not at all, and the
// total is billed at the price read under the lock.
func (e *Engine) Purchase(ctx context.Context, a *Actor, id int64, in QuantityInput) (*model.Item, *model.Purchase, error) {
	if err := in.check(); err != nil {
		return nil, nil, err
	}
	if err := requireActor(a); err != nil {
		return nil, nil, err
	}

	var (
		updated  *model.Item
		purchase *model.Purchase
	)
	err := db.InTx(ctx, e.db, func(tx *sqlx.Tx) error {
		item, err := store.LockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrNotFound
		}
		if item.Quantity < in.Quantity {
			return &InsufficientStockError{Available: item.Quantity, Requested: in.Quantity}
		}

		updated, err = store.SetItemQuantity(ctx, tx, id, item.Quantity-in.Quantity)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("item %d vanished under lock", id)
		}

		total := item.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
		if total.GreaterThan(store.MaxAmount) {
			return invalid("Purchase total is too large")
		}
		purchase, err = store.InsertPurchase(ctx, tx, a.UserID, id, in.Quantity, total)
		return err
	})
	if err != nil {
		return nil, nil, storeErr("processing purchase", err)
	}

	slog.Info("purchase committed",
		"sweet_id", id, "user_id", a.UserID, "quantity", in.Quantity,
		"total", purchase.TotalPrice.StringFixed(2), "remaining", updated.Quantity,
	)
	return updated, purchase, nil
}

// Restock adds qty units to an item. Admin only; no ledger entry is made.
func (e *Engine) Restock(ctx context.Context, a *Actor, id int64, in QuantityInput) (*model.Item, error) {
	if err := e.gate.RequireAdmin(ctx, a); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	var updated *model.Item
	err := db.InTx(ctx, e.db, func(tx *sqlx.Tx) error {
		item, err := store.LockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrNotFound
		}
		updated, err = store.AddItemQuantity(ctx, tx, id, in.Quantity)
		return err
	})
	if err != nil {
		return nil, storeErr("restocking sweet", err)
	}

	slog.Info("sweet restocked", "sweet_id", id, "user_id", a.UserID, "quantity", in.Quantity, "stock", updated.Quantity)
	return updated, nil
}

// SetImage stores an already processed image for an item and points its
// image_url at imageURL. Same permission as Update.
func (e *Engine) SetImage(ctx context.Context, a *Actor, id int64, img model.ItemImage, imageURL string) (*model.Item, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}

	item, err := store.SetItemImage(ctx, e.db, id, img, imageURL)
	if err != nil {
		return nil, storeErr("storing sweet image", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// Image returns an item's stored image.
func (e *Engine) Image(ctx context.Context, id int64) (*model.ItemImage, error) {
	img, err := store.GetItemImage(ctx, e.db, id)
	if err != nil {
		return nil, storeErr("getting sweet image", err)
	}
	if img == nil {
		return nil, ErrNotFound
	}
	return img, nil
}

// PurchasesForActor returns the actor's own purchases, newest first.
func (e *Engine) PurchasesForActor(ctx context.Context, a *Actor) ([]model.Purchase, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	purchases, err := store.ListPurchasesByUser(ctx, e.db, a.UserID)
	if err != nil {
		return nil, storeErr("listing purchases", err)
	}
	return purchases, nil
}

// PurchasesForItem returns every purchase recorded against an item id,
// including after the item was deleted. Admin only.
func (e *Engine) PurchasesForItem(ctx context.Context, a *Actor, id int64) ([]model.Purchase, error) {
	if err := e.gate.RequireAdmin(ctx, a); err != nil {
		return nil, err
	}
	purchases, err := store.ListPurchasesByItem(ctx, e.db, id)
	if err != nil {
		return nil, storeErr("listing purchases", err)
	}
	return purchases, nil
}
