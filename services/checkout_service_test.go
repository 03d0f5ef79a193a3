package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vendiko/vendiko-api/cache"
	"github.com/vendiko/vendiko-api/models"
)

// stubEngine fails every operation with the configured error.
type stubEngine struct {
	err error
}

func (s *stubEngine) Reserve(ctx context.Context, items []StockItem) error     { return s.err }
func (s *stubEngine) Release(ctx context.Context, items []StockItem) error     { return s.err }
func (s *stubEngine) Ship(ctx context.Context, items []StockItem) error        { return s.err }
func (s *stubEngine) Restock(ctx context.Context, items []StockItem) error     { return s.err }
func (s *stubEngine) ReturnStock(ctx context.Context, items []StockItem) error { return s.err }

func newTestCheckout(t *testing.T) (*CheckoutService, *StockService, *gorm.DB) {
	db := setupTestDB(t)
	inv := cache.NewInvalidator(cache.NewMockStore(), newTestLogger())
	stock := NewStockService(db, inv, newTestLogger())
	checkout := NewCheckoutService(db, stock, inv, newTestLogger())
	return checkout, stock, db
}

func validInput(items ...CheckoutItem) CheckoutInput {
	return CheckoutInput{
		Items:         items,
		Amount:        100,
		Address:       "12 Harbor Lane",
		PaymentMethod: models.PaymentCOD,
	}
}

func TestCheckoutSplitsByVendor(t *testing.T) {
	checkout, _, db := newTestCheckout(t)
	ctx := context.Background()

	vendorA, vendorB := uint(1), uint(2)
	p1 := createProduct(t, db, &vendorA, 10, 0, 10)
	p2 := createProduct(t, db, &vendorA, 10, 0, 10)
	p3 := createProduct(t, db, &vendorB, 10, 0, 10)
	p4 := createProduct(t, db, nil, 10, 0, 10) // platform-owned

	order, err := checkout.Checkout(ctx, 7, validInput(
		CheckoutItem{ProductID: p1.ID, Quantity: 2, Price: 10, VendorID: &vendorA},
		CheckoutItem{ProductID: p2.ID, Quantity: 1, Price: 20, VendorID: &vendorA},
		CheckoutItem{ProductID: p3.ID, Quantity: 3, Price: 5, VendorID: &vendorB},
		CheckoutItem{ProductID: p4.ID, Quantity: 1, Price: 15},
	))
	require.NoError(t, err)

	assert.Equal(t, models.OrderInProgress, order.Status)
	assert.Equal(t, uint(7), order.UserID)
	require.Len(t, order.VendorOrders, 3, "one suborder per vendor plus the platform bucket")

	byVendor := map[string]models.VendorOrder{}
	for _, sub := range order.VendorOrders {
		assert.Equal(t, models.SuborderPending, sub.Status)
		if sub.VendorID == nil {
			byVendor["platform"] = sub
		} else if *sub.VendorID == vendorA {
			byVendor["a"] = sub
		} else {
			byVendor["b"] = sub
		}
	}
	assert.Len(t, byVendor["a"].Items, 2)
	assert.Len(t, byVendor["b"].Items, 1)
	assert.Len(t, byVendor["platform"].Items, 1)

	// price is the submitted snapshot, not the product's current price
	assert.Equal(t, float64(5), byVendor["b"].Items[0].Price)

	// reservations committed for every line
	assert.Equal(t, 2, reloadProduct(t, db, p1.ID).ReservedStock)
	assert.Equal(t, 3, reloadProduct(t, db, p3.ID).ReservedStock)

	var pending models.PendingReservation
	require.NoError(t, db.Where("user_id = ?", 7).First(&pending).Error)
	assert.Equal(t, models.ReservationCompleted, pending.Status)
	require.NotNil(t, pending.OrderID)
	assert.Equal(t, order.ID, *pending.OrderID)
}

func TestCheckoutAllOrNothing(t *testing.T) {
	checkout, _, db := newTestCheckout(t)
	ctx := context.Background()

	vendorA := uint(1)
	plenty := createProduct(t, db, &vendorA, 10, 0, 10)
	scarce := createProduct(t, db, &vendorA, 1, 0, 1)

	_, err := checkout.Checkout(ctx, 7, validInput(
		CheckoutItem{ProductID: plenty.ID, Quantity: 2, Price: 10, VendorID: &vendorA},
		CheckoutItem{ProductID: scarce.ID, Quantity: 5, Price: 10, VendorID: &vendorA},
	))
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// nothing reserved, no order rows created
	assert.Equal(t, 0, reloadProduct(t, db, plenty.ID).ReservedStock)
	assert.Equal(t, 0, reloadProduct(t, db, scarce.ID).ReservedStock)

	var orders, suborders, items int64
	db.Model(&models.Order{}).Count(&orders)
	db.Model(&models.VendorOrder{}).Count(&suborders)
	db.Model(&models.OrderItem{}).Count(&items)
	assert.Zero(t, orders)
	assert.Zero(t, suborders)
	assert.Zero(t, items)

	var pending models.PendingReservation
	require.NoError(t, db.Where("user_id = ?", 7).First(&pending).Error)
	assert.Equal(t, models.ReservationFailed, pending.Status)
}

func TestCheckoutDownstreamUnavailable(t *testing.T) {
	db := setupTestDB(t)
	inv := cache.NewInvalidator(cache.NewMockStore(), newTestLogger())
	engine := &stubEngine{err: failf(ErrDownstreamUnavailable, "engine down")}
	checkout := NewCheckoutService(db, engine, inv, newTestLogger())

	p := createProduct(t, db, nil, 10, 0, 10)

	_, err := checkout.Checkout(context.Background(), 7, validInput(
		CheckoutItem{ProductID: p.ID, Quantity: 1, Price: 10},
	))
	assert.ErrorIs(t, err, ErrDownstreamUnavailable)

	var orders int64
	db.Model(&models.Order{}).Count(&orders)
	assert.Zero(t, orders)
}

func TestCheckoutValidation(t *testing.T) {
	checkout, _, db := newTestCheckout(t)
	ctx := context.Background()

	p := createProduct(t, db, nil, 10, 0, 10)
	line := CheckoutItem{ProductID: p.ID, Quantity: 1, Price: 10}

	tests := []struct {
		name   string
		userID uint
		input  CheckoutInput
		want   error
	}{
		{"missing user", 0, validInput(line), ErrUnauthorized},
		{"empty cart", 7, validInput(), ErrValidation},
		{
			"missing address", 7,
			CheckoutInput{Items: []CheckoutItem{line}, Amount: 10, PaymentMethod: models.PaymentCOD},
			ErrValidation,
		},
		{
			"bad payment method", 7,
			CheckoutInput{Items: []CheckoutItem{line}, Amount: 10, Address: "x", PaymentMethod: "CHEQUE"},
			ErrValidation,
		},
		{
			"zero quantity", 7,
			validInput(CheckoutItem{ProductID: p.ID, Quantity: 0, Price: 10}),
			ErrValidation,
		},
		{
			"negative price", 7,
			validInput(CheckoutItem{ProductID: p.ID, Quantity: 1, Price: -1}),
			ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkout.Checkout(ctx, tt.userID, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// validation failures happen before any transaction
	assert.Equal(t, 0, reloadProduct(t, db, p.ID).ReservedStock)
}

func TestCheckoutAcceptsFreeItems(t *testing.T) {
	checkout, _, db := newTestCheckout(t)

	p := createProduct(t, db, nil, 10, 0, 10)
	order, err := checkout.Checkout(context.Background(), 7, validInput(
		CheckoutItem{ProductID: p.ID, Quantity: 1, Price: 0},
	))
	require.NoError(t, err)

	require.Len(t, order.VendorOrders, 1)
	require.Len(t, order.VendorOrders[0].Items, 1)
	assert.Equal(t, float64(0), order.VendorOrders[0].Items[0].Price)
	assert.Equal(t, 1, reloadProduct(t, db, p.ID).ReservedStock)
}

func TestPartitionByVendorPreservesOrder(t *testing.T) {
	a, b := uint(1), uint(2)
	groups := partitionByVendor([]CheckoutItem{
		{ProductID: 1, VendorID: &b},
		{ProductID: 2},
		{ProductID: 3, VendorID: &a},
		{ProductID: 4, VendorID: &b},
	})

	require.Len(t, groups, 3)
	assert.Equal(t, b, *groups[0].vendorID)
	assert.Len(t, groups[0].items, 2)
	assert.Nil(t, groups[1].vendorID)
	assert.Equal(t, a, *groups[2].vendorID)
}
