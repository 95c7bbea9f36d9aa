package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercatohq/mercato-backend/api/middleware"
	ordersvc "github.com/mercatohq/mercato-backend/internal/orders"
	"github.com/mercatohq/mercato-backend/pkg/db/models"
	"github.com/mercatohq/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatohq/mercato-backend/pkg/errors"
)

type stubOrdersService struct {
	getOrder     func(ctx context.Context, orderID, requesterID uuid.UUID, role enums.UserRole) (*models.Order, error)
	listForUser  func(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error)
	listAll      func(ctx context.Context, limit int) ([]models.Order, error)
	updateStatus func(ctx context.Context, input ordersvc.UpdateStatusInput) (*models.Order, error)
}

func (s *stubOrdersService) GetOrder(ctx context.Context, orderID, requesterID uuid.UUID, role enums.UserRole) (*models.Order, error) {
	if s.getOrder != nil {
		return s.getOrder(ctx, orderID, requesterID, role)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrdersService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error) {
	if s.listForUser != nil {
		return s.listForUser(ctx, userID, limit)
	}
	return nil, nil
}

func (s *stubOrdersService) ListAll(ctx context.Context, limit int) ([]models.Order, error) {
	if s.listAll != nil {
		return s.listAll(ctx, limit)
	}
	return nil, nil
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, input ordersvc.UpdateStatusInput) (*models.Order, error) {
	if s.updateStatus != nil {
		return s.updateStatus(ctx, input)
	}
	return nil, nil
}

func requestWithOrderID(method, target, orderID string, body string, ctx context.Context) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("orderId", orderID)
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	return req.WithContext(ctx)
}

func TestOrderDetailRejectsInvalidID(t *testing.T) {
	ctx := middleware.WithUserID(context.Background(), uuid.NewString())
	req := requestWithOrderID(http.MethodGet, "/api/v1/orders/not-a-uuid", "not-a-uuid", "", ctx)
	rec := httptest.NewRecorder()
	OrderDetail(&stubOrdersService{}, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", rec.Code)
	}
}

func TestOrderDetailHidesForeignOrders(t *testing.T) {
	orderID := uuid.New()
	stub := &stubOrdersService{
		getOrder: func(ctx context.Context, id, requesterID uuid.UUID, role enums.UserRole) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}
	ctx := middleware.WithUserID(context.Background(), uuid.NewString())
	req := requestWithOrderID(http.MethodGet, "/api/v1/orders/"+orderID.String(), orderID.String(), "", ctx)
	rec := httptest.NewRecorder()
	OrderDetail(stub, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for hidden order, got %d", rec.Code)
	}
}

func TestOrderDetailReturnsOwnOrder(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	stub := &stubOrdersService{
		getOrder: func(ctx context.Context, id, requesterID uuid.UUID, role enums.UserRole) (*models.Order, error) {
			if id != orderID || requesterID != userID {
				t.Fatalf("unexpected lookup %s by %s", id, requesterID)
			}
			return &models.Order{
				ID:          orderID,
				UserID:      userID,
				Status:      enums.OrderStatusConfirmed,
				TotalAmount: decimal.RequireFromString("99.95"),
			}, nil
		},
	}
	ctx := middleware.WithUserID(context.Background(), userID.String())
	ctx = middleware.WithRole(ctx, string(enums.RoleCustomer))
	req := requestWithOrderID(http.MethodGet, "/api/v1/orders/"+orderID.String(), orderID.String(), "", ctx)
	rec := httptest.NewRecorder()
	OrderDetail(stub, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Data orderResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Data.OrderID != orderID {
		t.Fatalf("expected order %s, got %s", orderID, payload.Data.OrderID)
	}
}

func TestOrderListPassesLimit(t *testing.T) {
	userID := uuid.New()
	var gotLimit int
	stub := &stubOrdersService{
		listForUser: func(ctx context.Context, id uuid.UUID, limit int) ([]models.Order, error) {
			gotLimit = limit
			return []models.Order{{ID: uuid.New(), UserID: id}}, nil
		},
	}
	ctx := middleware.WithUserID(context.Background(), userID.String())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=5", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	OrderList(stub, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotLimit != 5 {
		t.Fatalf("expected limit 5, got %d", gotLimit)
	}
}

func TestAdminOrderUpdateStatus(t *testing.T) {
	orderID := uuid.New()
	adminID := uuid.New()

	var captured ordersvc.UpdateStatusInput
	stub := &stubOrdersService{
		updateStatus: func(ctx context.Context, input ordersvc.UpdateStatusInput) (*models.Order, error) {
			captured = input
			return &models.Order{ID: input.OrderID, Status: enums.OrderStatusConfirmed}, nil
		},
	}

	ctx := middleware.WithUserID(context.Background(), adminID.String())
	ctx = middleware.WithRole(ctx, string(enums.RoleAdmin))
	req := requestWithOrderID(http.MethodPatch, "/api/admin/v1/orders/"+orderID.String()+"/status", orderID.String(), `{"status":"confirmed"}`, ctx)
	rec := httptest.NewRecorder()
	AdminOrderUpdateStatus(stub, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.OrderID != orderID {
		t.Fatalf("expected order %s, got %s", orderID, captured.OrderID)
	}
	if captured.NewStatus != "confirmed" {
		t.Fatalf("expected status confirmed, got %s", captured.NewStatus)
	}
	if captured.ActorRole != enums.RoleAdmin {
		t.Fatalf("expected admin actor, got %s", captured.ActorRole)
	}
}

func TestAdminOrderUpdateStatusSurfacesStateConflict(t *testing.T) {
	orderID := uuid.New()
	stub := &stubOrdersService{
		updateStatus: func(ctx context.Context, input ordersvc.UpdateStatusInput) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot transition order from shipped to pending")
		},
	}

	ctx := middleware.WithUserID(context.Background(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.RoleAdmin))
	req := requestWithOrderID(http.MethodPatch, "/api/admin/v1/orders/"+orderID.String()+"/status", orderID.String(), `{"status":"pending"}`, ctx)
	rec := httptest.NewRecorder()
	AdminOrderUpdateStatus(stub, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for backward transition, got %d", rec.Code)
	}
}
