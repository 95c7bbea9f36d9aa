package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one cart row joined with its live catalog data.
type Line struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// View is the cart contents returned to the client. Prices reflect the
// catalog at read time; nothing is locked in until checkout.
type View struct {
	CartID   uuid.UUID       `json:"cart_id"`
	UserID   uuid.UUID       `json:"user_id"`
	Lines    []Line          `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
