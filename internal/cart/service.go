package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mercatohq/mercato-backend/internal/catalog"
	"github.com/mercatohq/mercato-backend/pkg/db/models"
	pkgerrors "github.com/mercatohq/mercato-backend/pkg/errors"
)

// AddItemInput carries the parameters for adding a product to the cart.
type AddItemInput struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
}

// Service defines the cart staging operations.
type Service interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	ListContents(ctx context.Context, userID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, input AddItemInput) (*View, error)
}

type service struct {
	repo    Repository
	catalog catalog.Service
}

// NewService builds the cart service with the required dependencies.
func NewService(repo Repository, catalogSvc catalog.Service) (Service, error) {
	if repo == nil {
		return nil, errors.New("cart repository required")
	}
	if catalogSvc == nil {
		return nil, errors.New("catalog service required")
	}
	return &service{repo: repo, catalog: catalogSvc}, nil
}

func (s *service) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cart, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get or create cart")
	}
	return cart, nil
}

func (s *service) ListContents(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, input AddItemInput) (*View, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	// Surfaces NOT_FOUND for missing or unavailable products.
	if _, err := s.catalog.GetPrice(ctx, input.ProductID); err != nil {
		return nil, err
	}

	cart, err := s.GetOrCreateCart(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	item := models.CartItem{
		CartID:    cart.ID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
	}
	if err := s.repo.UpsertItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart item")
	}

	return s.buildView(ctx, cart)
}

func (s *service) buildView(ctx context.Context, cart *models.Cart) (*View, error) {
	lines, err := s.repo.ListLines(ctx, cart.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			lines = nil
		} else {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart lines")
		}
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal)
	}
	return &View{
		CartID:   cart.ID,
		UserID:   cart.UserID,
		Lines:    lines,
		Subtotal: subtotal,
	}, nil
}
