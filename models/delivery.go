package models

import (
	"time"

	"gorm.io/gorm"
)

// DeliveryAssignment statuses
const (
	AssignmentAssigned       = "ASSIGNED"
	AssignmentPicked         = "PICKED"
	AssignmentOutForDelivery = "OUT_FOR_DELIVERY"
	AssignmentDelivered      = "DELIVERED"
	AssignmentFailed         = "FAILED"
	AssignmentReassigned     = "REASSIGNED"
)

// ReasonReturnPickup marks an assignment as a return-pickup task rather than
// a forward delivery.
const ReasonReturnPickup = "RETURN_PICKUP"

var assignmentTransitions = map[string][]string{
	AssignmentAssigned:       {AssignmentPicked, AssignmentFailed, AssignmentReassigned},
	AssignmentPicked:         {AssignmentOutForDelivery, AssignmentDelivered, AssignmentFailed, AssignmentReassigned},
	AssignmentOutForDelivery: {AssignmentDelivered, AssignmentFailed},
}

// ActiveAssignmentStatuses are the statuses of tasks still on an agent's
// plate; everything else belongs to the history partition.
var ActiveAssignmentStatuses = []string{AssignmentAssigned, AssignmentPicked, AssignmentOutForDelivery}

// DeliveryAssignment is a courier task for one order: either a forward
// delivery or, when Reason is RETURN_PICKUP, a customer-return collection.
// CashDeposited tracks COD reconciliation after a delivered task.
type DeliveryAssignment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	OrderID       uint           `gorm:"not null;index" json:"order_id"`
	DeliveryBoyID uint           `gorm:"not null;index" json:"delivery_boy_id"`
	Status        string         `gorm:"not null;default:'ASSIGNED'" json:"status"`
	Reason        *string        `json:"reason,omitempty"`
	CashDeposited bool           `gorm:"not null;default:false" json:"cash_deposited"`
	DepositedAt   *time.Time     `json:"deposited_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the DeliveryAssignment model
func (DeliveryAssignment) TableName() string {
	return "delivery_assignments"
}

// CanTransition reports whether the assignment may move to the given status.
func (d *DeliveryAssignment) CanTransition(to string) bool {
	for _, next := range assignmentTransitions[d.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReturnPickup reports whether this task collects a customer return.
func (d *DeliveryAssignment) IsReturnPickup() bool {
	return d.Reason != nil && *d.Reason == ReasonReturnPickup
}

// Active reports whether the task is still in an agent's working set.
func (d *DeliveryAssignment) Active() bool {
	for _, s := range ActiveAssignmentStatuses {
		if d.Status == s {
			return true
		}
	}
	return false
}
