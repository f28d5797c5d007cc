package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a purchasable catalog entry (a "sweet") with its stock level.
type Item struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Description *string         `json:"description"`
	ImageURL    *string         `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ItemFilter narrows a catalog listing. Zero-valued fields impose no constraint.
type ItemFilter struct {
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// NewItem holds the values of an item being inserted.
type NewItem struct {
	Name        string
	Category    string
	Price       decimal.Decimal
	Quantity    int
	Description *string
	ImageURL    *string
}

// ItemFields holds the values written by a partial update.
// A nil pointer means "not supplied". The Clear flags set the optional
// text columns to NULL and win over a supplied value.
type ItemFields struct {
	Name             *string
	Category         *string
	Price            *decimal.Decimal
	Quantity         *int
	Description      *string
	ImageURL         *string
	ClearDescription bool
	ClearImageURL    bool
}

// Empty reports whether no field is supplied.
func (f ItemFields) Empty() bool {
	return f.Name == nil && f.Category == nil && f.Price == nil &&
		f.Quantity == nil && f.Description == nil && f.ImageURL == nil &&
		!f.ClearDescription && !f.ClearImageURL
}

// ItemImage is the stored image of an item.
type ItemImage struct {
	Data []byte
	MIME string
}
