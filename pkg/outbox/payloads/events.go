package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercatohq/mercato-backend/pkg/enums"
)

// OrderCreatedEvent signals that checkout converted a cart into an order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	UserID      uuid.UUID         `json:"user_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	LineCount   int               `json:"line_count"`
	Status      enums.OrderStatus `json:"status"`
	OrderDate   time.Time         `json:"order_date"`
}

// OrderStatusChangedEvent is emitted whenever an order moves through the lifecycle.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
}

// CartCheckedOutEvent reports that a cart was drained by a successful checkout.
type CartCheckedOutEvent struct {
	CartID  uuid.UUID `json:"cart_id"`
	UserID  uuid.UUID `json:"user_id"`
	OrderID uuid.UUID `json:"order_id"`
}
