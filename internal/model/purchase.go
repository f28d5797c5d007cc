package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is an immutable record of a committed sale. ItemID is a plain
// reference; the item may have been deleted since.
type Purchase struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	ItemID     int64           `json:"sweet_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
}
