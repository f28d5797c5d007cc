package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sweetshop/internal/db"
	"github.com/erazemk/sweetshop/internal/model"
)

const itemColumns = `id, name, category, price_cents, quantity, description, image_url, created_at, updated_at`

type itemRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Category    string         `db:"category"`
	PriceCents  int64          `db:"price_cents"`
	Quantity    int            `db:"quantity"`
	Description sql.NullString `db:"description"`
	ImageURL    sql.NullString `db:"image_url"`
	CreatedAt   timestamp      `db:"created_at"`
	UpdatedAt   timestamp      `db:"updated_at"`
}

func (r itemRow) toModel() model.Item {
	item := model.Item{
		ID:        r.ID,
		Name:      r.Name,
		Category:  r.Category,
		Price:     fromCents(r.PriceCents),
		Quantity:  r.Quantity,
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
	if r.Description.Valid {
		item.Description = &r.Description.String
	}
	if r.ImageURL.Valid {
		item.ImageURL = &r.ImageURL.String
	}
	return item
}

// getItemRow runs a single-row item query. A missing row yields nil.
func getItemRow(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (*model.Item, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item := row.toModel()
	return &item, nil
}

// CreateItem inserts a new item and returns it.
func CreateItem(ctx context.Context, q sqlx.ExtContext, in model.NewItem) (*model.Item, error) {
	ts := now()
	item, err := getItemRow(ctx, q,
		`INSERT INTO sweets (name, category, price_cents, quantity, description, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+itemColumns,
		in.Name, in.Category, toCents(in.Price), in.Quantity, nullable(in.Description), nullable(in.ImageURL), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}
	return item, nil
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Item, error) {
	item, err := getItemRow(ctx, q, `SELECT `+itemColumns+` FROM sweets WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// LockItem reads an item inside a transaction and holds it exclusively
// until the transaction ends.
func LockItem(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Item, error) {
	item, err := getItemRow(ctx, tx, `SELECT `+itemColumns+` FROM sweets WHERE id = ?`+db.ForUpdate(tx), id)
	if err != nil {
		return nil, fmt.Errorf("locking item: %w", err)
	}
	return item, nil
}

// ListItems returns items matching the filter, newest first. Every call
// re-queries the table.
func ListItems(ctx context.Context, q sqlx.ExtContext, f model.ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM sweets WHERE 1=1`
	var args []any

	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		query += ` AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	if f.Category != "" {
		query += ` AND LOWER(category) = LOWER(?)`
		args = append(args, f.Category)
	}
	if f.MinPrice != nil {
		// Round the bound up: 1.005 must exclude 1.00.
		query += ` AND price_cents >= ?`
		args = append(args, f.MinPrice.Shift(2).Ceil().IntPart())
	}
	if f.MaxPrice != nil {
		query += ` AND price_cents <= ?`
		args = append(args, f.MaxPrice.Shift(2).Floor().IntPart())
	}

	query += ` ORDER BY created_at DESC, id DESC`

	var rows []itemRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}

	items := make([]model.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toModel())
	}
	return items, nil
}

// UpdateItem changes only the supplied fields and refreshes updated_at.
func UpdateItem(ctx context.Context, q sqlx.ExtContext, id int64, f model.ItemFields) (*model.Item, error) {
	if f.Empty() {
		return nil, fmt.Errorf("updating item: no fields to update")
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if f.Name != nil {
		set("name", *f.Name)
	}
	if f.Category != nil {
		set("category", *f.Category)
	}
	if f.Price != nil {
		set("price_cents", toCents(*f.Price))
	}
	if f.Quantity != nil {
		set("quantity", *f.Quantity)
	}
	switch {
	case f.ClearDescription:
		set("description", nil)
	case f.Description != nil:
		set("description", *f.Description)
	}
	switch {
	case f.ClearImageURL:
		set("image_url", nil)
	case f.ImageURL != nil:
		set("image_url", *f.ImageURL)
	}
	set("updated_at", now())
	args = append(args, id)

	item, err := getItemRow(ctx, q,
		`UPDATE sweets SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+itemColumns,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}
	return item, nil
}

// SetItemQuantity overwrites an item's quantity.
func SetItemQuantity(ctx context.Context, q sqlx.ExtContext, id int64, quantity int) (*model.Item, error) {
	item, err := getItemRow(ctx, q,
		`UPDATE sweets SET quantity = ?, updated_at = ? WHERE id = ? RETURNING `+itemColumns,
		quantity, now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("setting item quantity: %w", err)
	}
	return item, nil
}

// AddItemQuantity atomically increments an item's quantity.
func AddItemQuantity(ctx context.Context, q sqlx.ExtContext, id int64, delta int) (*model.Item, error) {
	item, err := getItemRow(ctx, q,
		`UPDATE sweets SET quantity = quantity + ?, updated_at = ? WHERE id = ? RETURNING `+itemColumns,
		delta, now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("adding item quantity: %w", err)
	}
	return item, nil
}

// DeleteItem removes an item and returns its last state.
func DeleteItem(ctx context.Context, q sqlx.ExtContext, id int64) (*model.Item, error) {
	item, err := getItemRow(ctx, q, `DELETE FROM sweets WHERE id = ? RETURNING `+itemColumns, id)
	if err != nil {
		return nil, fmt.Errorf("deleting item: %w", err)
	}
	return item, nil
}

// SetItemImage stores an item's image and points image_url at it.
func SetItemImage(ctx context.Context, q sqlx.ExtContext, id int64, img model.ItemImage, imageURL string) (*model.Item, error) {
	item, err := getItemRow(ctx, q,
		`UPDATE sweets SET image = ?, image_mime = ?, image_url = ?, updated_at = ?
		 WHERE id = ? RETURNING `+itemColumns,
		img.Data, img.MIME, imageURL, now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("setting item image: %w", err)
	}
	return item, nil
}

// GetItemImage returns an item's stored image, or nil if it has none.
func GetItemImage(ctx context.Context, q sqlx.ExtContext, id int64) (*model.ItemImage, error) {
	var data []byte
	var mime sql.NullString
	err := q.QueryRowxContext(ctx,
		q.Rebind(`SELECT image, image_mime FROM sweets WHERE id = ?`), id,
	).Scan(&data, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item image: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return &model.ItemImage{Data: data, MIME: mime.String}, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
