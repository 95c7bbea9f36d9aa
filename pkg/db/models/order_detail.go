package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderDetail snapshots one cart line at checkout. PricePerUnit is the
// catalog price at the moment of purchase and never changes afterwards.
type OrderDetail struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	PricePerUnit decimal.Decimal `gorm:"column:price_per_unit;type:numeric(10,2);not null"`
}
