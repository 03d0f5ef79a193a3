package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderItem statuses follow the owning suborder through fulfillment.
const (
	ItemPending        = "PENDING"
	ItemOutForDelivery = "OUT_FOR_DELIVERY"
	ItemDelivered      = "DELIVERED"
	ItemCancelled      = "CANCELLED"
)

// Return workflow statuses
const (
	ReturnNone            = "NONE"
	ReturnApproved        = "APPROVED"
	ReturnPickupScheduled = "PICKUP_SCHEDULED"
	ReturnReturned        = "RETURNED"
	ReturnRefunded        = "REFUNDED"
	ReturnCompleted       = "COMPLETED"
)

// OrderItem is a single product line inside a VendorOrder. Price is the
// snapshot taken at purchase time and is never re-read from the product.
type OrderItem struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	VendorOrderID uint           `gorm:"not null;index" json:"vendor_order_id"`
	ProductID     uint           `gorm:"not null;index" json:"product_id"`
	Quantity      int            `gorm:"not null;check:quantity > 0" json:"quantity"`
	Price         float64        `gorm:"not null" json:"price"`
	Status        string         `gorm:"not null;default:'PENDING'" json:"status"`
	ReturnStatus  string         `gorm:"not null;default:'NONE'" json:"return_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}

// Deliverable reports whether the item still rides along on a delivery task:
// cancelled lines and lines in the return workflow are excluded.
func (i *OrderItem) Deliverable() bool {
	return i.Status != ItemCancelled && i.ReturnStatus == ReturnNone
}
