package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vendiko/vendiko-api/cache"
	"github.com/vendiko/vendiko-api/models"
)

// Task is a courier task with the order items it physically covers.
type Task struct {
	Assignment models.DeliveryAssignment `json:"assignment"`
	Items      []models.OrderItem        `json:"items"`
}

// TaskList partitions an agent's tasks into active work and history.
type TaskList struct {
	Active  []Task `json:"active"`
	History []Task `json:"history"`
}

// DeliveryService drives the courier task lifecycle. Forward deliveries and
// return pickups share the state machine; the Reason field tells them apart
// and decides which order items each transition touches.
type DeliveryService struct {
	db     *gorm.DB
	engine ReservationEngine
	inv    *cache.Invalidator
	log    *logrus.Logger
}

// NewDeliveryService creates the delivery assignment service.
func NewDeliveryService(db *gorm.DB, engine ReservationEngine, inv *cache.Invalidator, log *logrus.Logger) *DeliveryService {
	return &DeliveryService{db: db, engine: engine, inv: inv, log: log}
}

// ListTasks returns an agent's tasks, active first. The computed snapshot is
// cached on the aggregate TTL; every mutation touching the agent's orders
// evicts it through the invalidator.
func (s *DeliveryService) ListTasks(ctx context.Context, agentID uint) (*TaskList, error) {
	if agentID == 0 {
		return nil, failf(ErrUnauthorized, "missing delivery agent")
	}

	var list TaskList
	err := s.inv.GetOrLoad(ctx, cache.AgentTasksKey(agentID), cache.TTLAggregate, &list, func(ctx context.Context) (interface{}, error) {
		return s.loadTasks(ctx, agentID)
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// loadTasks computes an agent's task list from the database. An item claimed
// by an active return-pickup task is excluded from every other active task so
// a single physical item never appears on two assignments at once.
func (s *DeliveryService) loadTasks(ctx context.Context, agentID uint) (*TaskList, error) {
	var assignments []models.DeliveryAssignment
	if err := s.db.WithContext(ctx).
		Where("delivery_boy_id = ?", agentID).
		Order("created_at DESC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	list := &TaskList{}
	seen := map[uint]bool{}

	// return pickups claim their items first
	for _, a := range assignments {
		if !a.Active() || !a.IsReturnPickup() {
			continue
		}
		items, err := s.orderItems(ctx, a.OrderID)
		if err != nil {
			return nil, err
		}
		task := Task{Assignment: a}
		for _, it := range items {
			if inReturnFlow(it) && !seen[it.ID] {
				seen[it.ID] = true
				task.Items = append(task.Items, it)
			}
		}
		list.Active = append(list.Active, task)
	}

	for _, a := range assignments {
		if a.IsReturnPickup() && a.Active() {
			continue
		}
		items, err := s.orderItems(ctx, a.OrderID)
		if err != nil {
			return nil, err
		}
		task := Task{Assignment: a}
		for _, it := range items {
			if a.Active() {
				if it.Deliverable() && !seen[it.ID] {
					seen[it.ID] = true
					task.Items = append(task.Items, it)
				}
			} else {
				task.Items = append(task.Items, it)
			}
		}
		if a.Active() {
			list.Active = append(list.Active, task)
		} else {
			list.History = append(list.History, task)
		}
	}

	return list, nil
}

// UpdateStatus moves an assignment through its state machine and applies the
// side effects of the transition to the order's items, suborders and payment.
func (s *DeliveryService) UpdateStatus(ctx context.Context, actor Principal, assignmentID uint, to string) (*models.DeliveryAssignment, error) {
	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && assignment.DeliveryBoyID != actor.UserID {
		return nil, failf(ErrForbidden, "assignment %d is not yours", assignmentID)
	}
	if !assignment.CanTransition(to) {
		return nil, failf(ErrValidation,
			"assignment %d cannot move from %s to %s", assignment.ID, assignment.Status, to)
	}

	// Collecting a return puts stock back; the engine call happens before the
	// item rows flip to RETURNED, mirroring how cancellation releases first.
	var returned []StockItem
	if assignment.IsReturnPickup() && to == models.AssignmentDelivered {
		items, err := s.orderItems(ctx, assignment.OrderID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.ReturnStatus == models.ReturnPickupScheduled {
				returned = append(returned, StockItem{ProductID: it.ProductID, Quantity: it.Quantity})
			}
		}
		if len(returned) > 0 {
			if err := s.engine.ReturnStock(ctx, returned); err != nil {
				return nil, err
			}
		}
	}

	var order models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assignment.Status = to
		if err := tx.Save(assignment).Error; err != nil {
			return err
		}
		if err := tx.First(&order, assignment.OrderID).Error; err != nil {
			return err
		}

		if assignment.IsReturnPickup() {
			return s.applyReturnPickupEffects(tx, assignment, to)
		}
		return s.applyDeliveryEffects(tx, assignment, &order, to)
	})
	if err != nil {
		return nil, err
	}

	s.inv.OrderMutated(ctx, order.UserID, assignment.DeliveryBoyID)
	return assignment, nil
}

// applyDeliveryEffects handles forward-delivery transitions: picking up moves
// the order's deliverable items out for delivery, completing the task
// delivers them, settles COD payment and re-derives the order status.
func (s *DeliveryService) applyDeliveryEffects(tx *gorm.DB, assignment *models.DeliveryAssignment, order *models.Order, to string) error {
	switch to {
	case models.AssignmentPicked:
		if err := s.updateDeliverableItems(tx, assignment.OrderID, models.ItemOutForDelivery); err != nil {
			return err
		}
		return s.updateAgentSuborders(tx, assignment, models.SuborderDeliveryAssigned, models.SuborderOutForDelivery)

	case models.AssignmentDelivered:
		if err := s.updateDeliverableItems(tx, assignment.OrderID, models.ItemDelivered); err != nil {
			return err
		}
		if err := s.updateAgentSuborders(tx, assignment, models.SuborderOutForDelivery, models.SuborderDelivered); err != nil {
			return err
		}
		// cash collected on the doorstep settles a COD order
		if order.PaymentMethod == models.PaymentCOD {
			order.Payment = true
		}
		var suborders []models.VendorOrder
		if err := tx.Where("order_id = ?", order.ID).Find(&suborders).Error; err != nil {
			return err
		}
		order.Status = aggregateOrderStatus(order.Status, suborders)
		return tx.Save(order).Error

	default:
		return nil
	}
}

// applyReturnPickupEffects handles return-pickup transitions: picking up
// schedules the approved items, completing the task marks them returned.
func (s *DeliveryService) applyReturnPickupEffects(tx *gorm.DB, assignment *models.DeliveryAssignment, to string) error {
	switch to {
	case models.AssignmentPicked:
		return s.updateReturnItems(tx, assignment.OrderID, models.ReturnApproved, models.ReturnPickupScheduled)
	case models.AssignmentDelivered:
		return s.updateReturnItems(tx, assignment.OrderID, models.ReturnPickupScheduled, models.ReturnReturned)
	default:
		return nil
	}
}

// ApproveReturn approves a customer's return request for a delivered item.
func (s *DeliveryService) ApproveReturn(ctx context.Context, actor Principal, itemID uint) (*models.OrderItem, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleVendor {
		return nil, failf(ErrForbidden, "role %q may not approve returns", actor.Role)
	}

	var item models.OrderItem
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, failf(ErrNotFound, "order item %d not found", itemID)
		}
		return nil, err
	}
	if item.Status != models.ItemDelivered {
		return nil, failf(ErrValidation, "order item %d is %s, only delivered items can be returned", item.ID, item.Status)
	}
	if item.ReturnStatus != models.ReturnNone {
		return nil, failf(ErrValidation, "order item %d already has return status %s", item.ID, item.ReturnStatus)
	}

	item.ReturnStatus = models.ReturnApproved
	if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ScheduleReturnPickup creates a RETURN_PICKUP task covering an order's
// approved return items.
func (s *DeliveryService) ScheduleReturnPickup(ctx context.Context, actor Principal, orderID, agentID uint) (*models.DeliveryAssignment, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleVendor {
		return nil, failf(ErrForbidden, "role %q may not schedule return pickups", actor.Role)
	}
	if agentID == 0 {
		return nil, failf(ErrValidation, "delivery agent id is required")
	}

	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, failf(ErrNotFound, "order %d not found", orderID)
		}
		return nil, err
	}

	items, err := s.orderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	approved := 0
	for _, it := range items {
		if it.ReturnStatus == models.ReturnApproved {
			approved++
		}
	}
	if approved == 0 {
		return nil, failf(ErrValidation, "order %d has no approved return items", orderID)
	}

	reason := models.ReasonReturnPickup
	assignment := models.DeliveryAssignment{
		OrderID:       orderID,
		DeliveryBoyID: agentID,
		Status:        models.AssignmentAssigned,
		Reason:        &reason,
	}
	if err := s.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		return nil, err
	}

	s.inv.OrderMutated(ctx, order.UserID, agentID)
	return &assignment, nil
}

// DepositCash records the COD reconciliation deposit for a delivered task.
func (s *DeliveryService) DepositCash(ctx context.Context, actor Principal, assignmentID uint) (*models.DeliveryAssignment, error) {
	assignment, err := s.getAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != RoleAdmin && assignment.DeliveryBoyID != actor.UserID {
		return nil, failf(ErrForbidden, "assignment %d is not yours", assignmentID)
	}
	if assignment.Status != models.AssignmentDelivered {
		return nil, failf(ErrValidation, "assignment %d is %s, cash can only be deposited after delivery", assignment.ID, assignment.Status)
	}
	if assignment.CashDeposited {
		return assignment, nil
	}

	now := time.Now()
	assignment.CashDeposited = true
	assignment.DepositedAt = &now
	if err := s.db.WithContext(ctx).Save(assignment).Error; err != nil {
		return nil, err
	}
	return assignment, nil
}

// updateDeliverableItems moves every non-cancelled, non-returned item of an
// order to the given status.
func (s *DeliveryService) updateDeliverableItems(tx *gorm.DB, orderID uint, status string) error {
	return tx.Model(&models.OrderItem{}).
		Where("vendor_order_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&models.VendorOrder{}).Select("id").Where("order_id = ?", orderID)).
		Where("status <> ? AND return_status = ?", models.ItemCancelled, models.ReturnNone).
		Update("status", status).Error
}

// updateReturnItems advances an order's return-workflow items from one
// return status to the next, leaving every other item untouched.
func (s *DeliveryService) updateReturnItems(tx *gorm.DB, orderID uint, from, to string) error {
	return tx.Model(&models.OrderItem{}).
		Where("vendor_order_id IN (?)",
			tx.Session(&gorm.Session{NewDB: true}).Model(&models.VendorOrder{}).Select("id").Where("order_id = ?", orderID)).
		Where("return_status = ?", from).
		Update("return_status", to).Error
}

// updateAgentSuborders advances this agent's suborders of the order from one
// status to the next.
func (s *DeliveryService) updateAgentSuborders(tx *gorm.DB, assignment *models.DeliveryAssignment, from, to string) error {
	return tx.Model(&models.VendorOrder{}).
		Where("order_id = ? AND delivery_boy_id = ? AND status = ?", assignment.OrderID, assignment.DeliveryBoyID, from).
		Update("status", to).Error
}

// orderItems loads every item of an order across its suborders.
func (s *DeliveryService) orderItems(ctx context.Context, orderID uint) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.WithContext(ctx).
		Joins("JOIN vendor_orders ON vendor_orders.id = order_items.vendor_order_id").
		Where("vendor_orders.order_id = ?", orderID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// getAssignment loads one assignment or reports NotFound.
func (s *DeliveryService) getAssignment(ctx context.Context, id uint) (*models.DeliveryAssignment, error) {
	var assignment models.DeliveryAssignment
	if err := s.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, failf(ErrNotFound, "assignment %d not found", id)
		}
		return nil, err
	}
	return &assignment, nil
}

// inReturnFlow reports whether an item currently belongs on a return-pickup
// task.
func inReturnFlow(it models.OrderItem) bool {
	return it.ReturnStatus == models.ReturnApproved || it.ReturnStatus == models.ReturnPickupScheduled
}
