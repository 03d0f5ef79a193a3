package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vendiko/vendiko-api/cache"
	"github.com/vendiko/vendiko-api/models"
)

// Principal is the gateway-verified identity a request acts as. The core
// trusts it without re-validating credentials.
type Principal struct {
	UserID uint
	Role   string
}

// Roles
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleAdmin    = "admin"
	RoleDelivery = "delivery"
)

// SuborderService drives the vendor-suborder state machine and the derived
// order status. All stock effects go through the reservation engine; this
// service never touches product counters directly.
type SuborderService struct {
	db     *gorm.DB
	engine ReservationEngine
	inv    *cache.Invalidator
	log    *logrus.Logger
}

// NewSuborderService creates the suborder state machine service.
func NewSuborderService(db *gorm.DB, engine ReservationEngine, inv *cache.Invalidator, log *logrus.Logger) *SuborderService {
	return &SuborderService{db: db, engine: engine, inv: inv, log: log}
}

// Pack moves a PENDING suborder to PACKED.
func (s *SuborderService) Pack(ctx context.Context, actor Principal, suborderID uint) (*models.VendorOrder, error) {
	return s.transition(ctx, actor, suborderID, models.SuborderPacked, nil)
}

// AssignDelivery moves a PACKED suborder to DELIVERY_ASSIGNED, pins the
// delivery agent on it and ensures an ASSIGNED delivery task exists for the
// owning order and agent.
func (s *SuborderService) AssignDelivery(ctx context.Context, actor Principal, suborderID, agentID uint) (*models.VendorOrder, error) {
	if agentID == 0 {
		return nil, failf(ErrValidation, "delivery agent id is required")
	}
	return s.transition(ctx, actor, suborderID, models.SuborderDeliveryAssigned, func(tx *gorm.DB, suborder *models.VendorOrder) error {
		suborder.DeliveryBoyID = &agentID

		// one active forward-delivery task per (order, agent)
		var existing models.DeliveryAssignment
		err := tx.Where("order_id = ? AND delivery_boy_id = ? AND reason IS NULL AND status IN ?",
			suborder.OrderID, agentID, models.ActiveAssignmentStatuses).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&models.DeliveryAssignment{
			OrderID:       suborder.OrderID,
			DeliveryBoyID: agentID,
			Status:        models.AssignmentAssigned,
		}).Error
	})
}

// CancelSuborder cancels a single suborder, releasing its reserved stock.
// Cancellation is blocked once delivery has been assigned.
func (s *SuborderService) CancelSuborder(ctx context.Context, actor Principal, suborderID uint) (*models.VendorOrder, error) {
	suborder, err := s.getSuborder(ctx, suborderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSuborder(ctx, actor, suborder); err != nil {
		return nil, err
	}
	if !suborder.Cancellable() {
		return nil, failf(ErrCancellationBlocked,
			"suborder %d is %s and can no longer be cancelled", suborder.ID, suborder.Status)
	}

	items, err := s.suborderItems(ctx, suborder.ID)
	if err != nil {
		return nil, err
	}

	if release := releasableQuantities(items); len(release) > 0 {
		if err := s.engine.Release(ctx, release); err != nil {
			return nil, err
		}
	}

	var order models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := cancelSuborderRows(tx, suborder); err != nil {
			return err
		}
		return s.recomputeOrderStatus(tx, suborder.OrderID, &order)
	})
	if err != nil {
		return nil, err
	}

	s.inv.OrderMutated(ctx, order.UserID)
	return suborder, nil
}

// CancelOrder cancels a whole order. It is rejected with
// ErrCancellationBlocked if any suborder has progressed past PACKED.
func (s *SuborderService) CancelOrder(ctx context.Context, actor Principal, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, failf(ErrNotFound, "order %d not found", orderID)
		}
		return nil, err
	}
	if actor.Role != RoleAdmin && order.UserID != actor.UserID {
		return nil, failf(ErrForbidden, "order %d does not belong to you", orderID)
	}

	var suborders []models.VendorOrder
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&suborders).Error; err != nil {
		return nil, err
	}

	var toCancel []models.VendorOrder
	for _, sub := range suborders {
		if sub.Status == models.SuborderCancelled {
			continue
		}
		if !sub.Cancellable() {
			return nil, failf(ErrCancellationBlocked,
				"suborder %d is %s; the order can no longer be cancelled", sub.ID, sub.Status)
		}
		toCancel = append(toCancel, sub)
	}
	if len(toCancel) == 0 {
		return &order, nil
	}

	var release []StockItem
	for _, sub := range toCancel {
		items, err := s.suborderItems(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		release = append(release, releasableQuantities(items)...)
	}

	if len(release) > 0 {
		if err := s.engine.Release(ctx, release); err != nil {
			return nil, err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range toCancel {
			if err := cancelSuborderRows(tx, &toCancel[i]); err != nil {
				return err
			}
		}
		return s.recomputeOrderStatus(tx, orderID, &order)
	})
	if err != nil {
		return nil, err
	}

	s.inv.OrderMutated(ctx, order.UserID)
	return &order, nil
}

// SettlePayment marks an order as paid. Called by the payment collaborator
// after it has verified the payment; the core only reacts to the signal.
func (s *SuborderService) SettlePayment(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return failf(ErrNotFound, "order %d not found", orderID)
			}
			return err
		}
		order.Payment = true
		if order.Status == models.OrderInProgress {
			order.Status = models.OrderProcessing
		}
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}

	s.inv.OrderMutated(ctx, order.UserID)
	return &order, nil
}

// transition applies one forward step of the suborder state machine, with an
// optional extra mutation inside the same transaction.
func (s *SuborderService) transition(ctx context.Context, actor Principal, suborderID uint, to string, extra func(*gorm.DB, *models.VendorOrder) error) (*models.VendorOrder, error) {
	suborder, err := s.getSuborder(ctx, suborderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeSuborder(ctx, actor, suborder); err != nil {
		return nil, err
	}
	if !suborder.CanTransition(to) {
		return nil, failf(ErrValidation, "suborder %d cannot move from %s to %s", suborder.ID, suborder.Status, to)
	}

	var order models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		suborder.Status = to
		if extra != nil {
			if err := extra(tx, suborder); err != nil {
				return err
			}
		}
		if err := tx.Save(suborder).Error; err != nil {
			return err
		}
		return s.recomputeOrderStatus(tx, suborder.OrderID, &order)
	})
	if err != nil {
		return nil, err
	}

	s.inv.OrderMutated(ctx, order.UserID)
	return suborder, nil
}

// recomputeOrderStatus derives the order status from its suborders inside
// the caller's transaction. The order row is written only when the derived
// status changed.
func (s *SuborderService) recomputeOrderStatus(tx *gorm.DB, orderID uint, out *models.Order) error {
	if err := tx.First(out, orderID).Error; err != nil {
		return err
	}
	var suborders []models.VendorOrder
	if err := tx.Where("order_id = ?", orderID).Find(&suborders).Error; err != nil {
		return err
	}

	derived := aggregateOrderStatus(out.Status, suborders)
	if derived == out.Status {
		return nil
	}
	out.Status = derived
	return tx.Save(out).Error
}

// aggregateOrderStatus is the suborder → order aggregation rule: all
// cancelled ⇒ cancelled, all delivered ⇒ delivered, any terminal suborder
// among the rest ⇒ partially cancelled, otherwise the status is untouched.
func aggregateOrderStatus(current string, suborders []models.VendorOrder) string {
	if len(suborders) == 0 {
		return current
	}
	cancelled, delivered := 0, 0
	for _, sub := range suborders {
		switch sub.Status {
		case models.SuborderCancelled:
			cancelled++
		case models.SuborderDelivered:
			delivered++
		}
	}
	switch {
	case cancelled == len(suborders):
		return models.OrderCancelled
	case delivered == len(suborders):
		return models.OrderDelivered
	case cancelled+delivered > 0:
		return models.OrderPartiallyCancelled
	default:
		return current
	}
}

// getSuborder loads one suborder or reports NotFound.
func (s *SuborderService) getSuborder(ctx context.Context, id uint) (*models.VendorOrder, error) {
	var suborder models.VendorOrder
	if err := s.db.WithContext(ctx).First(&suborder, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, failf(ErrNotFound, "suborder %d not found", id)
		}
		return nil, err
	}
	return &suborder, nil
}

// authorizeSuborder enforces ownership: vendors may only act on their own
// suborders, customers only on suborders of their own orders.
func (s *SuborderService) authorizeSuborder(ctx context.Context, actor Principal, suborder *models.VendorOrder) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleVendor:
		if suborder.VendorID != nil && *suborder.VendorID == actor.UserID {
			return nil
		}
		return failf(ErrForbidden, "suborder %d does not belong to vendor %d", suborder.ID, actor.UserID)
	case RoleCustomer:
		var order models.Order
		if err := s.db.WithContext(ctx).First(&order, suborder.OrderID).Error; err != nil {
			return err
		}
		if order.UserID == actor.UserID {
			return nil
		}
		return failf(ErrForbidden, "order %d does not belong to you", suborder.OrderID)
	default:
		return failf(ErrForbidden, "role %q may not modify suborders", actor.Role)
	}
}

// suborderItems loads the items of one suborder.
func (s *SuborderService) suborderItems(ctx context.Context, suborderID uint) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := s.db.WithContext(ctx).Where("vendor_order_id = ?", suborderID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// releasableQuantities maps non-cancelled items to their stock quantities.
func releasableQuantities(items []models.OrderItem) []StockItem {
	out := make([]StockItem, 0, len(items))
	for _, it := range items {
		if it.Status == models.ItemCancelled {
			continue
		}
		out = append(out, StockItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// cancelSuborderRows marks a suborder and its items cancelled.
func cancelSuborderRows(tx *gorm.DB, suborder *models.VendorOrder) error {
	if err := tx.Model(&models.OrderItem{}).
		Where("vendor_order_id = ? AND status <> ?", suborder.ID, models.ItemCancelled).
		Update("status", models.ItemCancelled).Error; err != nil {
		return err
	}
	suborder.Status = models.SuborderCancelled
	return tx.Save(suborder).Error
}
