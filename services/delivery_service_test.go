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

func newTestDelivery(t *testing.T) (*DeliveryService, *StockService, *gorm.DB) {
	db := setupTestDB(t)
	inv := cache.NewInvalidator(cache.NewMockStore(), newTestLogger())
	stock := NewStockService(db, inv, newTestLogger())
	delivery := NewDeliveryService(db, stock, inv, newTestLogger())
	return delivery, stock, db
}

// seedDelivery builds an order ready for the courier: one suborder in
// DELIVERY_ASSIGNED pinned to the agent, one pending item and an ASSIGNED
// forward-delivery task.
func seedDelivery(t *testing.T, db *gorm.DB, agentID uint, product models.Product, qty int) (models.Order, models.VendorOrder, models.DeliveryAssignment) {
	order := models.Order{
		UserID:        7,
		Amount:        float64(qty) * product.Price,
		Address:       "12 Harbor Lane",
		PaymentMethod: models.PaymentCOD,
		Status:        models.OrderInProgress,
	}
	require.NoError(t, db.Create(&order).Error)

	sub := models.VendorOrder{
		OrderID:       order.ID,
		VendorID:      product.VendorID,
		DeliveryBoyID: &agentID,
		Status:        models.SuborderDeliveryAssigned,
	}
	require.NoError(t, db.Create(&sub).Error)
	require.NoError(t, db.Create(&models.OrderItem{
		VendorOrderID: sub.ID,
		ProductID:     product.ID,
		Quantity:      qty,
		Price:         product.Price,
		Status:        models.ItemPending,
		ReturnStatus:  models.ReturnNone,
	}).Error)

	assignment := models.DeliveryAssignment{
		OrderID:       order.ID,
		DeliveryBoyID: agentID,
		Status:        models.AssignmentAssigned,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return order, sub, assignment
}

// seedDeliveredItem creates an order whose single item has already been
// delivered by the agent.
func seedDeliveredItem(t *testing.T, db *gorm.DB, agentID uint, product models.Product, qty int) (models.Order, models.OrderItem) {
	order := models.Order{
		UserID:        7,
		Amount:        float64(qty) * product.Price,
		Address:       "12 Harbor Lane",
		PaymentMethod: models.PaymentOnline,
		Payment:       true,
		Status:        models.OrderDelivered,
	}
	require.NoError(t, db.Create(&order).Error)

	sub := models.VendorOrder{
		OrderID:       order.ID,
		VendorID:      product.VendorID,
		DeliveryBoyID: &agentID,
		Status:        models.SuborderDelivered,
	}
	require.NoError(t, db.Create(&sub).Error)

	item := models.OrderItem{
		VendorOrderID: sub.ID,
		ProductID:     product.ID,
		Quantity:      qty,
		Price:         product.Price,
		Status:        models.ItemDelivered,
		ReturnStatus:  models.ReturnNone,
	}
	require.NoError(t, db.Create(&item).Error)
	return order, item
}

func reloadItem(t *testing.T, db *gorm.DB, id uint) models.OrderItem {
	t.Helper()
	var item models.OrderItem
	require.NoError(t, db.First(&item, id).Error)
	return item
}

func TestForwardDeliveryFlow(t *testing.T) {
	delivery, _, db := newTestDelivery(t)
	ctx := context.Background()
	agent := Principal{UserID: 50, Role: RoleDelivery}

	vendorID := uint(3)
	p := createProduct(t, db, &vendorID, 10, 2, 10)
	order, sub, assignment := seedDelivery(t, db, agent.UserID, p, 2)

	picked, err := delivery.UpdateStatus(ctx, agent, assignment.ID, models.AssignmentPicked)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentPicked, picked.Status)

	var items []models.OrderItem
	require.NoError(t, db.Where("vendor_order_id = ?", sub.ID).Find(&items).Error)
	for _, it := range items {
		assert.Equal(t, models.ItemOutForDelivery, it.Status)
	}
	var pickedSub models.VendorOrder
	require.NoError(t, db.First(&pickedSub, sub.ID).Error)
	assert.Equal(t, models.SuborderOutForDelivery, pickedSub.Status)

	delivered, err := delivery.UpdateStatus(ctx, agent, assignment.ID, models.AssignmentDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDelivered, delivered.Status)

	require.NoError(t, db.Where("vendor_order_id = ?", sub.ID).Find(&items).Error)
	for _, it := range items {
		assert.Equal(t, models.ItemDelivered, it.Status)
	}

	var finalOrder models.Order
	require.NoError(t, db.First(&finalOrder, order.ID).Error)
	assert.Equal(t, models.OrderDelivered, finalOrder.Status)
	assert.True(t, finalOrder.Payment, "COD settles on delivery")
}

func TestDeliverySkipsCancelledItems(t *testing.T) {
	delivery, _, db := newTestDelivery(t)
	ctx := context.Background()
	agent := Principal{UserID: 50, Role: RoleDelivery}

	p := createProduct(t, db, nil, 10, 0, 10)
	_, sub, assignment := seedDelivery(t, db, agent.UserID, p, 1)

	cancelled := models.OrderItem{
		VendorOrderID: sub.ID,
		ProductID:     p.ID,
		Quantity:      1,
		Price:         p.Price,
		Status:        models.ItemCancelled,
		ReturnStatus:  models.ReturnNone,
	}
	require.NoError(t, db.Create(&cancelled).Error)

	_, err := delivery.UpdateStatus(ctx, agent, assignment.ID, models.AssignmentPicked)
	require.NoError(t, err)

	assert.Equal(t, models.ItemCancelled, reloadItem(t, db, cancelled.ID).Status)
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	delivery, _, db := newTestDelivery(t)
	agent := Principal{UserID: 50, Role: RoleDelivery}

	p := createProduct(t, db, nil, 10, 0, 10)
	_, _, assignment := seedDelivery(t, db, agent.UserID, p, 1)

	_, err := delivery.UpdateStatus(context.Background(), agent, assignment.ID, models.AssignmentDelivered)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatusForeignAssignment(t *testing.T) {
	delivery, _, db := newTestDelivery(t)

	p := createProduct(t, db, nil, 10, 0, 10)
	_, _, assignment := seedDelivery(t, db, 50, p, 1)

	_, err := delivery.UpdateStatus(context.Background(), Principal{UserID: 51, Role: RoleDelivery}, assignment.ID, models.AssignmentPicked)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestReturnPickupFlow(t *testing.T) {
	delivery, _, db := newTestDelivery(t)
	ctx := context.Background()
	agent := Principal{UserID: 60, Role: RoleDelivery}
	vendor := Principal{UserID: 3, Role: RoleVendor}

	vendorID := uint(3)
	p := createProduct(t, db, &vendorID, 10, 0, 5)
	order, item := seedDeliveredItem(t, db, agent.UserID, p, 2)

	approved, err := delivery.ApproveReturn(ctx, vendor, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnApproved, approved.ReturnStatus)

	pickup, err := delivery.ScheduleReturnPickup(ctx, vendor, order.ID, agent.UserID)
	require.NoError(t, err)
	assert.True(t, pickup.IsReturnPickup())
	assert.Equal(t, models.AssignmentAssigned, pickup.Status)

	_, err = delivery.UpdateStatus(ctx, agent, pickup.ID, models.AssignmentPicked)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnPickupScheduled, reloadItem(t, db, item.ID).ReturnStatus)

	_, err = delivery.UpdateStatus(ctx, agent, pickup.ID, models.AssignmentDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnReturned, reloadItem(t, db, item.ID).ReturnStatus)

	// the collected quantity is back in sellable and warehouse stock
	after := reloadProduct(t, db, p.ID)
	assert.Equal(t, 12, after.TotalStock)
	assert.Equal(t, 7, after.WarehouseStock)
	assert.Equal(t, 12, after.AvailableStock)
	assertInvariant(t, after)
}

func TestApproveReturnValidation(t *testing.T) {
	delivery, _, db := newTestDelivery(t)
	ctx := context.Background()
	vendor := Principal{UserID: 3, Role: RoleVendor}

	p := createProduct(t, db, nil, 10, 0, 10)
	_, sub, _ := seedDelivery(t, db, 50, p, 1)

	var pending models.OrderItem
	require.NoError(t, db.Where("vendor_order_id = ?", sub.ID).First(&pending).Error)

	// only delivered items can enter the return workflow
	_, err := delivery.ApproveReturn(ctx, vendor, pending.ID)
	assert.ErrorIs(t, err, ErrValidation)

	// customers cannot approve their own returns
	_, item := seedDeliveredItem(t, db, 50, p, 1)
	_, err = delivery.ApproveReturn(ctx, Principal{UserID: 7, Role: RoleCustomer}, item.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// approving twice is rejected
	_, err = delivery.ApproveReturn(ctx, vendor, item.ID)
	require.NoError(t, err)
	_, err = delivery.ApproveReturn(ctx, vendor, item.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestScheduleReturnPickupRequiresApprovedItems(t *testing.T) {
	delivery, _, db := newTestDelivery(t)

	p := createProduct(t, db, nil, 10, 0, 10)
	order, _ := seedDeliveredItem(t, db, 50, p, 1)

	_, err := delivery.ScheduleReturnPickup(context.Background(), Principal{UserID: 1, Role: RoleAdmin}, order.ID, 60)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListTasksPartitionsAndDeduplicates(t *testing.T) {
	delivery, _, db := newTestDelivery(t)
	ctx := context.Background()
	agentID := uint(60)
	vendor := Principal{UserID: 3, Role: RoleVendor}

	vendorID := uint(3)
	p := createProduct(t, db, &vendorID, 20, 0, 20)

	// an active forward delivery
	_, _, forward := seedDelivery(t, db, agentID, p, 1)

	// a delivered order with an approved return and a pickup task for it
	returnOrder, returnItem := seedDeliveredItem(t, db, agentID, p, 2)
	_, err := delivery.ApproveReturn(ctx, vendor, returnItem.ID)
	require.NoError(t, err)
	_, err = delivery.ScheduleReturnPickup(ctx, vendor, returnOrder.ID, agentID)
	require.NoError(t, err)

	// a second active pickup on the same order competes for the same item
	reason := models.ReasonReturnPickup
	require.NoError(t, db.Create(&models.DeliveryAssignment{
		OrderID:       returnOrder.ID,
		DeliveryBoyID: agentID,
		Status:        models.AssignmentAssigned,
		Reason:        &reason,
	}).Error)

	// a finished task for the same return order
	done := models.DeliveryAssignment{
		OrderID:       returnOrder.ID,
		DeliveryBoyID: agentID,
		Status:        models.AssignmentDelivered,
	}
	require.NoError(t, db.Create(&done).Error)

	list, err := delivery.ListTasks(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, list.Active, 3)
	require.Len(t, list.History, 1)

	// the approved item rides on exactly one active task
	carriers := 0
	for _, task := range list.Active {
		for _, it := range task.Items {
			if it.ID == returnItem.ID {
				carriers++
			}
		}
	}
	assert.Equal(t, 1, carriers)

	var forwardItems []models.OrderItem
	for _, task := range list.Active {
		if task.Assignment.ID == forward.ID {
			forwardItems = task.Items
		}
	}
	require.Len(t, forwardItems, 1, "the forward task still carries its own item")

	assert.Equal(t, done.ID, list.History[0].Assignment.ID)
}

func TestListTasksRequiresAgent(t *testing.T) {
	delivery, _, _ := newTestDelivery(t)
	_, err := delivery.ListTasks(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListTasksSecondReadServedFromCache(t *testing.T) {
	db := setupTestDB(t)
	store := cache.NewMockStore()
	inv := cache.NewInvalidator(store, newTestLogger())
	stock := NewStockService(db, inv, newTestLogger())
	delivery := NewDeliveryService(db, stock, inv, newTestLogger())
	ctx := context.Background()
	agentID := uint(50)

	p := createProduct(t, db, nil, 10, 0, 10)
	_, _, assignment := seedDelivery(t, db, agentID, p, 1)

	first, err := delivery.ListTasks(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, first.Active, 1)
	assert.True(t, store.Has(cache.AgentTasksKey(agentID)), "first read populates the snapshot")

	// removing the assignment behind the cache's back doesn't show until
	// a mutation evicts the key
	require.NoError(t, db.Delete(&models.DeliveryAssignment{}, assignment.ID).Error)

	second, err := delivery.ListTasks(ctx, agentID)
	require.NoError(t, err)
	require.Len(t, second.Active, 1)
	assert.Equal(t, assignment.ID, second.Active[0].Assignment.ID)

	inv.OrderMutated(ctx, 7, agentID)

	third, err := delivery.ListTasks(ctx, agentID)
	require.NoError(t, err)
	assert.Empty(t, third.Active)
}

func TestDepositCash(t *testing.T) {
	delivery, _, db := newTestDelivery(t)
	ctx := context.Background()
	agent := Principal{UserID: 50, Role: RoleDelivery}

	p := createProduct(t, db, nil, 10, 0, 10)
	_, _, assignment := seedDelivery(t, db, agent.UserID, p, 1)

	// not delivered yet
	_, err := delivery.DepositCash(ctx, agent, assignment.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = delivery.UpdateStatus(ctx, agent, assignment.ID, models.AssignmentPicked)
	require.NoError(t, err)
	_, err = delivery.UpdateStatus(ctx, agent, assignment.ID, models.AssignmentDelivered)
	require.NoError(t, err)

	deposited, err := delivery.DepositCash(ctx, agent, assignment.ID)
	require.NoError(t, err)
	assert.True(t, deposited.CashDeposited)
	require.NotNil(t, deposited.DepositedAt)
	first := *deposited.DepositedAt

	// idempotent: a second deposit keeps the original timestamp
	again, err := delivery.DepositCash(ctx, agent, assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *again.DepositedAt)

	// another agent cannot touch it
	_, err = delivery.DepositCash(ctx, Principal{UserID: 99, Role: RoleDelivery}, assignment.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}
