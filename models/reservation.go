package models

import (
	"time"
)

// PendingReservation statuses
const (
	ReservationPending   = "PENDING"
	ReservationCompleted = "COMPLETED"
	ReservationFailed    = "FAILED"
	ReservationExpired   = "EXPIRED"
)

// PendingReservation records a checkout's stock reservation before the order
// rows exist. If order creation never completes, the row stays PENDING and
// the reconciler releases the reserved stock once the row ages past its
// bound. Items holds the reserved (productId, quantity) pairs as JSON so the
// release needs no other table.
type PendingReservation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Items     string    `gorm:"not null" json:"items"`
	Status    string    `gorm:"not null;default:'PENDING';index" json:"status"`
	OrderID   *uint     `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the PendingReservation model
func (PendingReservation) TableName() string {
	return "pending_reservations"
}
