package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercatohq/mercato-backend/internal/cart"
	"github.com/mercatohq/mercato-backend/internal/catalog"
	"github.com/mercatohq/mercato-backend/internal/orders"
	"github.com/mercatohq/mercato-backend/pkg/db/models"
	"github.com/mercatohq/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatohq/mercato-backend/pkg/errors"
	"github.com/mercatohq/mercato-backend/pkg/outbox"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  price NUMERIC NOT NULL,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  category TEXT,
  is_available INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  added_at DATETIME,
  UNIQUE (cart_id, product_id)
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  shipping_address TEXT NOT NULL,
  total_amount NUMERIC NOT NULL,
  order_date DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_details (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  price_per_unit NUMERIC NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

type checkoutFixture struct {
	db      *gorm.DB
	svc     Service
	cartSvc cart.Service
	catalog catalog.Service
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	db := setupCheckoutTestDB(t)
	cartRepo := cart.NewRepository(db)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(db))
	require.NoError(t, err)
	cartSvc, err := cart.NewService(cart.NewRepository(db), catalogSvc)
	require.NoError(t, err)

	svc, err := NewService(
		cartRepo,
		orders.NewRepository(db),
		gormTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil),
		nil,
	)
	require.NoError(t, err)

	return &checkoutFixture{db: db, svc: svc, cartSvc: cartSvc, catalog: catalogSvc}
}

func (f *checkoutFixture) seedProduct(t *testing.T, name, price string) *models.Product {
	t.Helper()

	product, err := f.catalog.Create(context.Background(), catalog.CreateProductInput{
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	})
	require.NoError(t, err)
	return product
}

func (f *checkoutFixture) fillCart(t *testing.T, userID uuid.UUID, productID uuid.UUID, qty int) {
	t.Helper()

	_, err := f.cartSvc.AddItem(context.Background(), cart.AddItemInput{
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
	})
	require.NoError(t, err)
}

func TestExecuteCreatesOrderAndDrainsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	desk := f.seedProduct(t, "Desk", "100.00")
	mug := f.seedProduct(t, "Mug", "8.50")
	f.fillCart(t, userID, desk.ID, 2)
	f.fillCart(t, userID, mug.ID, 3)

	order, err := f.svc.Execute(ctx, Input{UserID: userID, ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("225.50")))
	assert.Len(t, order.Details, 2)

	var detailCount int64
	require.NoError(t, f.db.Model(&models.OrderDetail{}).Where("order_id = ?", order.ID).Count(&detailCount).Error)
	assert.EqualValues(t, 2, detailCount)

	var itemCount int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&itemCount).Error)
	assert.Zero(t, itemCount)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Order("event_type").Find(&events).Error)
	require.Len(t, events, 2)
	types := []enums.OutboxEventType{events[0].EventType, events[1].EventType}
	assert.Contains(t, types, enums.EventOrderCreated)
	assert.Contains(t, types, enums.EventCartCheckedOut)
}

func TestExecuteSnapshotsPricesAtCheckout(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	desk := f.seedProduct(t, "Desk", "100.00")
	f.fillCart(t, userID, desk.ID, 1)

	order, err := f.svc.Execute(ctx, Input{UserID: userID, ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	newPrice := decimal.RequireFromString("999.00")
	_, err = f.catalog.Update(ctx, desk.ID, catalog.UpdateProductInput{Price: &newPrice})
	require.NoError(t, err)

	var detail models.OrderDetail
	require.NoError(t, f.db.First(&detail, "order_id = ?", order.ID).Error)
	assert.True(t, detail.PricePerUnit.Equal(decimal.RequireFromString("100.00")))

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("100.00")))
}

func TestExecuteMissingCart(t *testing.T) {
	f := newCheckoutFixture(t)

	// User never had a cart: not-found, not an empty-cart rejection.
	_, err := f.svc.Execute(context.Background(), Input{UserID: uuid.New(), ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.False(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
}

func TestExecuteEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	// Cart exists but has no lines.
	_, err := f.cartSvc.GetOrCreateCart(ctx, userID)
	require.NoError(t, err)
	_, err = f.svc.Execute(ctx, Input{UserID: userID, ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
}

func TestExecuteRequiresShippingAddress(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Execute(context.Background(), Input{UserID: uuid.New(), ShippingAddress: "  "})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

// drainingCartRepo simulates a rival checkout that empties the cart after
// this transaction has read its lines.
type drainingCartRepo struct {
	cart.Repository
	db        *gorm.DB
	keepLines int
}

func (r *drainingCartRepo) WithTx(tx *gorm.DB) cart.Repository {
	return &drainingCartRepo{Repository: r.Repository.WithTx(tx), db: r.db, keepLines: r.keepLines}
}

func (r *drainingCartRepo) ListLines(ctx context.Context, cartID uuid.UUID) ([]cart.Line, error) {
	lines, err := r.Repository.ListLines(ctx, cartID)
	if err != nil {
		return nil, err
	}
	query := r.db.Where("cart_id = ?", cartID)
	if r.keepLines > 0 {
		var keep []models.CartItem
		if err := r.db.Where("cart_id = ?", cartID).Limit(r.keepLines).Find(&keep).Error; err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(keep))
		for _, item := range keep {
			ids = append(ids, item.ID)
		}
		query = query.Where("id NOT IN ?", ids)
	}
	if err := query.Delete(&models.CartItem{}).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func TestExecuteLosesRaceWhenCartAlreadyDrained(t *testing.T) {
	f := newCheckoutFixture(t)
	db := f.db

	repo := &drainingCartRepo{Repository: cart.NewRepository(db), db: db}
	svc, err := NewService(repo, orders.NewRepository(db), gormTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil), nil)
	require.NoError(t, err)

	userID := uuid.New()
	desk := f.seedProduct(t, "Desk", "100.00")
	f.fillCart(t, userID, desk.ID, 1)

	_, err = svc.Execute(context.Background(), Input{UserID: userID, ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var eventCount int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)
}

func TestExecuteDetectsPartialCartChange(t *testing.T) {
	f := newCheckoutFixture(t)
	db := f.db

	repo := &drainingCartRepo{Repository: cart.NewRepository(db), db: db, keepLines: 1}
	svc, err := NewService(repo, orders.NewRepository(db), gormTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil), nil)
	require.NoError(t, err)

	userID := uuid.New()
	desk := f.seedProduct(t, "Desk", "100.00")
	mug := f.seedProduct(t, "Mug", "8.50")
	f.fillCart(t, userID, desk.ID, 1)
	f.fillCart(t, userID, mug.ID, 1)

	_, err = svc.Execute(context.Background(), Input{UserID: userID, ShippingAddress: "1 Main St"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
}
