package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendiko/vendiko-api/cache"
	"github.com/vendiko/vendiko-api/models"
)

// StockItem is one (product, quantity) pair of a stock mutation batch.
type StockItem struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gt=0"`
}

// ReservationEngine is the contract every stock mutation goes through. The
// in-process implementation is StockService; across a service boundary it is
// ReservationClient. No other component may touch product stock counters.
type ReservationEngine interface {
	// Reserve earmarks on-hand stock for an unfulfilled order. The whole
	// batch fails with ErrInsufficientStock if any item cannot be covered.
	Reserve(ctx context.Context, items []StockItem) error
	// Release undoes a reservation, clamping the reserved counter at zero.
	Release(ctx context.Context, items []StockItem) error
	// Ship records stock physically leaving the warehouse for a sold order.
	Ship(ctx context.Context, items []StockItem) error
	// Restock records goods received into the warehouse.
	Restock(ctx context.Context, items []StockItem) error
	// ReturnStock re-enters a customer return into inventory.
	ReturnStock(ctx context.Context, items []StockItem) error
}

// StockService owns the product stock counters. Every operation runs as one
// all-or-nothing transaction over the affected rows and recomputes the
// derived available counter at each mutation site. Cache invalidation fires
// strictly after commit and never affects the outcome.
type StockService struct {
	db  *gorm.DB
	inv *cache.Invalidator
	log *logrus.Logger
}

// NewStockService creates the stock ledger service.
func NewStockService(db *gorm.DB, inv *cache.Invalidator, log *logrus.Logger) *StockService {
	return &StockService{db: db, inv: inv, log: log}
}

// Reserve increments reserved stock for every item, or fails the whole batch
// with ErrInsufficientStock leaving no counter changed.
func (s *StockService) Reserve(ctx context.Context, items []StockItem) error {
	return s.mutate(ctx, items, func(products map[uint]*models.Product) error {
		for _, it := range items {
			p := products[it.ProductID]
			if p.AvailableStock < it.Quantity {
				return failf(ErrInsufficientStock,
					"product %d: requested %d, available %d", p.ID, it.Quantity, p.AvailableStock)
			}
			p.ReservedStock += it.Quantity
			p.AvailableStock = models.RecomputeAvailable(p.TotalStock, p.ReservedStock)
		}
		return nil
	})
}

// Release decrements reserved stock for every item, clamped at zero so
// concurrent releases can never drive the counter negative.
func (s *StockService) Release(ctx context.Context, items []StockItem) error {
	return s.mutate(ctx, items, func(products map[uint]*models.Product) error {
		for _, it := range items {
			p := products[it.ProductID]
			p.ReservedStock = clampZero(p.ReservedStock - it.Quantity)
			p.AvailableStock = models.RecomputeAvailable(p.TotalStock, p.ReservedStock)
		}
		return nil
	})
}

// Ship moves sold stock out of the system: warehouse, total and reserved all
// drop by the shipped quantity. Every row is validated against its warehouse
// stock before any row is mutated; the rows stay locked across both passes,
// so the single transaction keeps the batch atomic.
func (s *StockService) Ship(ctx context.Context, items []StockItem) error {
	return s.mutate(ctx, items, func(products map[uint]*models.Product) error {
		for _, it := range items {
			p := products[it.ProductID]
			if p.WarehouseStock < it.Quantity {
				return failf(ErrInsufficientWarehouseStock,
					"product %d: shipping %d, warehouse has %d", p.ID, it.Quantity, p.WarehouseStock)
			}
		}
		for _, it := range items {
			p := products[it.ProductID]
			p.WarehouseStock = clampZero(p.WarehouseStock - it.Quantity)
			p.TotalStock = clampZero(p.TotalStock - it.Quantity)
			p.ReservedStock = clampZero(p.ReservedStock - it.Quantity)
			p.AvailableStock = models.RecomputeAvailable(p.TotalStock, p.ReservedStock)
		}
		return nil
	})
}

// Restock records goods received into the warehouse.
func (s *StockService) Restock(ctx context.Context, items []StockItem) error {
	return s.mutate(ctx, items, func(products map[uint]*models.Product) error {
		for _, it := range items {
			p := products[it.ProductID]
			p.WarehouseStock += it.Quantity
			p.TotalStock += it.Quantity
			p.AvailableStock = models.RecomputeAvailable(p.TotalStock, p.ReservedStock)
		}
		return nil
	})
}

// ReturnStock re-enters returned goods into inventory. The reservation for
// the returned line is assumed already released by the return workflow, so
// reserved stock is left alone.
func (s *StockService) ReturnStock(ctx context.Context, items []StockItem) error {
	return s.mutate(ctx, items, func(products map[uint]*models.Product) error {
		for _, it := range items {
			p := products[it.ProductID]
			p.TotalStock += it.Quantity
			p.WarehouseStock += it.Quantity
			p.AvailableStock = models.RecomputeAvailable(p.TotalStock, p.ReservedStock)
		}
		return nil
	})
}

// mutate runs one stock operation: validate the batch, lock and load every
// affected row, apply the mutation, commit, then evict derived caches.
func (s *StockService) mutate(ctx context.Context, items []StockItem, apply func(map[uint]*models.Product) error) error {
	if err := validateItems(items); err != nil {
		return err
	}

	var affected []models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := lockProducts(tx, items)
		if err != nil {
			return err
		}
		if err := apply(products); err != nil {
			return err
		}
		affected = affected[:0]
		for _, p := range products {
			if err := tx.Save(p).Error; err != nil {
				return err
			}
			affected = append(affected, *p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, affected)
	return nil
}

// invalidate evicts the caches derived from the committed rows.
func (s *StockService) invalidate(ctx context.Context, affected []models.Product) {
	ids := make([]uint, 0, len(affected))
	vendors := make([]*uint, 0, len(affected))
	for _, p := range affected {
		ids = append(ids, p.ID)
		vendors = append(vendors, p.VendorID)
	}
	s.inv.ProductsMutated(ctx, ids, vendors)
}

// lockProducts loads every product in the batch under a row lock, failing the
// whole batch with ErrNotFound when any id is absent.
func lockProducts(tx *gorm.DB, items []StockItem) (map[uint]*models.Product, error) {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	var rows []models.Product
	if err := withRowLock(tx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]*models.Product, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	for _, it := range items {
		if _, ok := byID[it.ProductID]; !ok {
			return nil, failf(ErrNotFound, "product %d not found", it.ProductID)
		}
	}
	return byID, nil
}

// withRowLock adds FOR UPDATE where the dialect supports it. sqlite has no
// row locks and serializes writers itself, so the clause is skipped there.
func withRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// validateItems rejects malformed batches before any transaction starts.
func validateItems(items []StockItem) error {
	if len(items) == 0 {
		return failf(ErrValidation, "items must not be empty")
	}
	for _, it := range items {
		if it.ProductID == 0 {
			return failf(ErrValidation, "product id is required")
		}
		if it.Quantity <= 0 {
			return failf(ErrValidation, "quantity for product %d must be positive", it.ProductID)
		}
	}
	return nil
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
