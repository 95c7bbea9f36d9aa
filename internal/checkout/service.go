package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercatohq/mercato-backend/internal/cart"
	"github.com/mercatohq/mercato-backend/internal/orders"
	"github.com/mercatohq/mercato-backend/pkg/db/models"
	"github.com/mercatohq/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatohq/mercato-backend/pkg/errors"
	"github.com/mercatohq/mercato-backend/pkg/logger"
	"github.com/mercatohq/mercato-backend/pkg/outbox"
	"github.com/mercatohq/mercato-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Input carries the parameters of a checkout attempt.
type Input struct {
	UserID          uuid.UUID
	ShippingAddress string
}

// Service converts a cart into an immutable order atomically.
type Service interface {
	Execute(ctx context.Context, input Input) (*models.Order, error)
}

type service struct {
	carts  cart.Repository
	orders orders.Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService builds the checkout service with the required dependencies.
func NewService(carts cart.Repository, ordersRepo orders.Repository, tx txRunner, outboxSvc outboxPublisher, logg *logger.Logger) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		carts:  carts,
		orders: ordersRepo,
		tx:     tx,
		outbox: outboxSvc,
		logg:   logg,
	}, nil
}

// Execute snapshots the live catalog prices into an order, then drains the
// cart in the same transaction. Everything commits or nothing does: a failure
// at any step leaves the cart intact and no order behind.
//
// Concurrency is resolved by the final guarded delete. Two checkouts of the
// same cart both read lines and both build an order, but only the one whose
// delete removes the rows commits; the loser observes zero deleted rows and
// rolls back as if the cart were empty.
func (s *service) Execute(ctx context.Context, input Input) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	address := strings.TrimSpace(input.ShippingAddress)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}

	var created *models.Order
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		userCart, err := cartRepo.FindByUserID(ctx, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		lines, err := cartRepo.ListLines(ctx, userCart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart lines")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		total := decimal.Zero
		details := make([]models.OrderDetail, 0, len(lines))
		for _, line := range lines {
			total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			details = append(details, models.OrderDetail{
				ProductID:    line.ProductID,
				Quantity:     line.Quantity,
				PricePerUnit: line.UnitPrice,
			})
		}

		order := &models.Order{
			UserID:          input.UserID,
			Status:          enums.OrderStatusPending,
			ShippingAddress: address,
			TotalAmount:     total,
			OrderDate:       time.Now(),
		}
		if _, err := orderRepo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		for i := range details {
			details[i].OrderID = order.ID
		}
		if err := orderRepo.CreateOrderDetails(ctx, details); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot order details")
		}

		deleted, err := cartRepo.DeleteItems(ctx, userCart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drain cart")
		}
		if deleted == 0 {
			// A concurrent checkout drained the cart first.
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		if deleted != int64(len(lines)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart changed during checkout")
		}

		actor := &outbox.ActorRef{UserID: input.UserID, Role: string(enums.RoleCustomer)}
		orderEvent := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				TotalAmount: order.TotalAmount,
				LineCount:   len(details),
				Status:      order.Status,
				OrderDate:   order.OrderDate,
			},
		}
		if err := s.outbox.Emit(ctx, tx, orderEvent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
		}

		cartEvent := outbox.DomainEvent{
			EventType:     enums.EventCartCheckedOut,
			AggregateType: enums.AggregateCart,
			AggregateID:   userCart.ID,
			Version:       1,
			Actor:         actor,
			Data: payloads.CartCheckedOutEvent{
				CartID:  userCart.ID,
				UserID:  input.UserID,
				OrderID: order.ID,
			},
		}
		if err := s.outbox.Emit(ctx, tx, cartEvent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit cart event")
		}

		order.Details = details
		created = order
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, created.ID.String())
		logCtx = s.logg.WithUserID(logCtx, input.UserID.String())
		s.logg.Info(logCtx, "checkout completed")
	}
	return created, nil
}
