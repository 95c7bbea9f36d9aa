package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercatohq/mercato-backend/api/responses"
	"github.com/mercatohq/mercato-backend/api/validators"
	checkoutsvc "github.com/mercatohq/mercato-backend/internal/checkout"
	"github.com/mercatohq/mercato-backend/pkg/db/models"
	pkgerrors "github.com/mercatohq/mercato-backend/pkg/errors"
	"github.com/mercatohq/mercato-backend/pkg/logger"
)

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,min=1"`
}

type orderLineResponse struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

type orderResponse struct {
	OrderID         uuid.UUID           `json:"order_id"`
	UserID          uuid.UUID           `json:"user_id"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shipping_address"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	OrderDate       time.Time           `json:"order_date"`
	Items           []orderLineResponse `json:"items"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderLineResponse, 0, len(order.Details))
	for _, detail := range order.Details {
		items = append(items, orderLineResponse{
			ProductID:    detail.ProductID,
			Quantity:     detail.Quantity,
			PricePerUnit: detail.PricePerUnit,
		})
	}
	return orderResponse{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		ShippingAddress: order.ShippingAddress,
		TotalAmount:     order.TotalAmount,
		OrderDate:       order.OrderDate,
		Items:           items,
	}
}

// Checkout converts the caller's cart into an order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), checkoutsvc.Input{
			UserID:          userID,
			ShippingAddress: body.ShippingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}
