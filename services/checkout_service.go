package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vendiko/vendiko-api/cache"
	"github.com/vendiko/vendiko-api/models"
)

// CheckoutItem is one cart line submitted at checkout. Price is the cart's
// snapshot and is persisted as-is; it is never re-read from the product. A
// zero price is valid, promotional lines cost nothing.
type CheckoutItem struct {
	ProductID uint    `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
	Price     float64 `json:"price" binding:"gte=0"`
	VendorID  *uint   `json:"vendor_id"`
}

// CheckoutInput is the orchestrator's entry payload.
type CheckoutInput struct {
	Items         []CheckoutItem `json:"items" binding:"required"`
	Amount        float64        `json:"amount" binding:"required,gt=0"`
	Address       string         `json:"address" binding:"required"`
	PaymentMethod string         `json:"payment_method" binding:"required"`
}

// CheckoutService turns a cart into an order split per vendor. The stock
// reservation happens first through the engine; order rows are only created
// once the reservation committed. There is no compensating release when order
// creation fails after a successful reservation — the pending-reservation row
// stays behind for the reconciler to expire.
type CheckoutService struct {
	db     *gorm.DB
	engine ReservationEngine
	inv    *cache.Invalidator
	log    *logrus.Logger
}

// NewCheckoutService creates the checkout orchestrator.
func NewCheckoutService(db *gorm.DB, engine ReservationEngine, inv *cache.Invalidator, log *logrus.Logger) *CheckoutService {
	return &CheckoutService{db: db, engine: engine, inv: inv, log: log}
}

// Checkout reserves stock for the cart, then creates the Order, one
// VendorOrder per vendor and their OrderItems. If the reservation fails the
// system state is unchanged.
func (s *CheckoutService) Checkout(ctx context.Context, userID uint, in CheckoutInput) (*models.Order, error) {
	if err := validateCheckout(userID, in); err != nil {
		return nil, err
	}

	stockItems := make([]StockItem, 0, len(in.Items))
	for _, it := range in.Items {
		stockItems = append(stockItems, StockItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	// Persist the reservation intent before calling the engine, so an
	// orphaned reservation is always discoverable by the reconciler.
	pending, err := s.createPending(ctx, userID, stockItems)
	if err != nil {
		return nil, err
	}

	if err := s.engine.Reserve(ctx, stockItems); err != nil {
		s.markPending(ctx, pending, models.ReservationFailed, nil)
		return nil, err
	}

	var order models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order = models.Order{
			UserID:        userID,
			Amount:        in.Amount,
			Address:       in.Address,
			PaymentMethod: in.PaymentMethod,
			Status:        models.OrderInProgress,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for _, group := range partitionByVendor(in.Items) {
			suborder := models.VendorOrder{
				OrderID:  order.ID,
				VendorID: group.vendorID,
				Status:   models.SuborderPending,
			}
			if err := tx.Create(&suborder).Error; err != nil {
				return err
			}

			items := make([]models.OrderItem, 0, len(group.items))
			for _, it := range group.items {
				items = append(items, models.OrderItem{
					VendorOrderID: suborder.ID,
					ProductID:     it.ProductID,
					Quantity:      it.Quantity,
					Price:         it.Price,
					Status:        models.ItemPending,
					ReturnStatus:  models.ReturnNone,
				})
			}
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.PendingReservation{}).
			Where("id = ?", pending.ID).
			Updates(map[string]interface{}{"status": models.ReservationCompleted, "order_id": order.ID}).Error
	})
	if err != nil {
		// Reserved stock is now orphaned until the reconciler sweeps the
		// pending row. Surfaced, not silently compensated.
		s.log.WithError(err).WithField("reservation", pending.Key).
			Error("order creation failed after successful reservation")
		return nil, err
	}

	s.inv.OrderMutated(ctx, userID)

	if err := s.db.WithContext(ctx).Preload("VendorOrders.Items").First(&order, order.ID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// createPending records the reservation intent.
func (s *CheckoutService) createPending(ctx context.Context, userID uint, items []StockItem) (*models.PendingReservation, error) {
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	pending := models.PendingReservation{
		Key:    uuid.NewString(),
		UserID: userID,
		Items:  string(encoded),
		Status: models.ReservationPending,
	}
	if err := s.db.WithContext(ctx).Create(&pending).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

// markPending updates a pending reservation's terminal status, best-effort.
func (s *CheckoutService) markPending(ctx context.Context, pending *models.PendingReservation, status string, orderID *uint) {
	updates := map[string]interface{}{"status": status}
	if orderID != nil {
		updates["order_id"] = *orderID
	}
	if err := s.db.WithContext(ctx).Model(&models.PendingReservation{}).
		Where("id = ?", pending.ID).Updates(updates).Error; err != nil {
		s.log.WithError(err).WithField("reservation", pending.Key).Warn("failed to update pending reservation")
	}
}

type vendorGroup struct {
	vendorID *uint
	items    []CheckoutItem
}

// partitionByVendor splits cart items per vendor, preserving first-seen
// order. Items without a vendor fall into one platform bucket (nil vendor).
func partitionByVendor(items []CheckoutItem) []vendorGroup {
	var groups []vendorGroup
	index := map[uint]int{}
	platform := -1

	for _, it := range items {
		if it.VendorID == nil {
			if platform == -1 {
				platform = len(groups)
				groups = append(groups, vendorGroup{vendorID: nil})
			}
			groups[platform].items = append(groups[platform].items, it)
			continue
		}
		i, ok := index[*it.VendorID]
		if !ok {
			i = len(groups)
			index[*it.VendorID] = i
			groups = append(groups, vendorGroup{vendorID: it.VendorID})
		}
		groups[i].items = append(groups[i].items, it)
	}
	return groups
}

// validateCheckout rejects malformed checkout payloads before any
// transaction starts.
func validateCheckout(userID uint, in CheckoutInput) error {
	if userID == 0 {
		return failf(ErrUnauthorized, "missing user")
	}
	if len(in.Items) == 0 {
		return failf(ErrValidation, "cart is empty")
	}
	if in.Address == "" {
		return failf(ErrValidation, "address is required")
	}
	if in.PaymentMethod != models.PaymentCOD && in.PaymentMethod != models.PaymentOnline {
		return failf(ErrValidation, "payment method must be COD or ONLINE")
	}
	if in.Amount <= 0 {
		return failf(ErrValidation, "amount must be positive")
	}
	for _, it := range in.Items {
		if it.ProductID == 0 {
			return failf(ErrValidation, "product id is required")
		}
		if it.Quantity <= 0 {
			return failf(ErrValidation, "quantity for product %d must be positive", it.ProductID)
		}
		if it.Price < 0 {
			return failf(ErrValidation, "price for product %d must not be negative", it.ProductID)
		}
	}
	return nil
}
