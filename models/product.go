package models

import (
	"time"

	"gorm.io/gorm"
)

// Product is a stock ledger row. The four stock counters are owned by the
// reservation engine; no other component may write them directly.
type Product struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	VendorID       *uint          `gorm:"index" json:"vendor_id"` // nil means platform-owned
	Name           string         `gorm:"not null" json:"name"`
	Price          float64        `gorm:"not null" json:"price"`
	TotalStock     int            `gorm:"not null;default:0" json:"total_stock"`
	ReservedStock  int            `gorm:"not null;default:0" json:"reserved_stock"`
	WarehouseStock int            `gorm:"not null;default:0" json:"warehouse_stock"`
	AvailableStock int            `gorm:"not null;default:0" json:"available_stock"` // derived, see RecomputeAvailable
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// RecomputeAvailable derives the available counter from total and reserved
// stock. It is the only way AvailableStock may be produced: every mutation of
// TotalStock or ReservedStock must call it before saving the row.
func RecomputeAvailable(totalStock, reservedStock int) int {
	return totalStock - reservedStock
}
