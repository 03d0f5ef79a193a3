package models

import (
	"time"

	"gorm.io/gorm"
)

// VendorOrder (suborder) statuses
const (
	SuborderPending          = "PENDING"
	SuborderPacked           = "PACKED"
	SuborderDeliveryAssigned = "DELIVERY_ASSIGNED"
	SuborderOutForDelivery   = "OUT_FOR_DELIVERY"
	SuborderDelivered        = "DELIVERED"
	SuborderCancelled        = "CANCELLED"
)

// suborderTransitions is the allowed forward edge set of the suborder state
// machine. Cancellation is blocked once delivery has been assigned.
var suborderTransitions = map[string][]string{
	SuborderPending:          {SuborderPacked, SuborderCancelled},
	SuborderPacked:           {SuborderDeliveryAssigned, SuborderCancelled},
	SuborderDeliveryAssigned: {SuborderOutForDelivery},
	SuborderOutForDelivery:   {SuborderDelivered},
}

// VendorOrder is the portion of an Order fulfilled by a single vendor: the
// unit of packing, delivery assignment and cancellation. A nil VendorID means
// the platform itself fulfills the suborder.
type VendorOrder struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	OrderID       uint           `gorm:"not null;index" json:"order_id"`
	VendorID      *uint          `gorm:"index" json:"vendor_id"`
	DeliveryBoyID *uint          `gorm:"index" json:"delivery_boy_id"`
	Status        string         `gorm:"not null;default:'PENDING'" json:"status"`
	Items         []OrderItem    `gorm:"foreignKey:VendorOrderID" json:"items,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the VendorOrder model
func (VendorOrder) TableName() string {
	return "vendor_orders"
}

// CanTransition reports whether a suborder may move from one status to
// another in a single step.
func (v *VendorOrder) CanTransition(to string) bool {
	for _, next := range suborderTransitions[v.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether the suborder may still be cancelled.
func (v *VendorOrder) Cancellable() bool {
	return v.Status == SuborderPending || v.Status == SuborderPacked
}
