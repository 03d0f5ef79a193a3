package models

import (
	"time"

	"gorm.io/gorm"
)

// Order statuses. PROCESSING is only reached through online payment
// settlement; the other transitions are derived from suborder aggregation.
const (
	OrderInProgress         = "IN_PROGRESS"
	OrderProcessing         = "PROCESSING"
	OrderPartiallyCancelled = "PARTIALLY_CANCELLED"
	OrderCancelled          = "CANCELLED"
	OrderDelivered          = "DELIVERED"
)

// Payment methods
const (
	PaymentCOD    = "COD"
	PaymentOnline = "ONLINE"
)

// Order represents a customer order. It owns its VendorOrders and,
// transitively, their OrderItems; Address and Amount are snapshots taken at
// checkout and never rewritten afterwards.
type Order struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	Amount        float64        `gorm:"not null" json:"amount"`
	Address       string         `gorm:"not null" json:"address"`
	PaymentMethod string         `gorm:"not null" json:"payment_method"` // COD or ONLINE
	Payment       bool           `gorm:"not null;default:false" json:"payment"`
	Status        string         `gorm:"not null;default:'IN_PROGRESS'" json:"status"`
	VendorOrders  []VendorOrder  `gorm:"foreignKey:OrderID" json:"vendor_orders,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}
