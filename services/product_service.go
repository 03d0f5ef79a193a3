package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vendiko/vendiko-api/cache"
	"github.com/vendiko/vendiko-api/models"
)

// InventorySummary is the computed inventory dashboard aggregate.
type InventorySummary struct {
	Products       int `json:"products"`
	TotalStock     int `json:"total_stock"`
	ReservedStock  int `json:"reserved_stock"`
	WarehouseStock int `json:"warehouse_stock"`
	AvailableStock int `json:"available_stock"`
}

// ProductService serves the cached product read paths. All reads go through
// the cache read-through; the stock counters themselves are only ever
// written by the reservation engine.
type ProductService struct {
	db  *gorm.DB
	inv *cache.Invalidator
	log *logrus.Logger
}

// NewProductService creates the product read service.
func NewProductService(db *gorm.DB, inv *cache.Invalidator, log *logrus.Logger) *ProductService {
	return &ProductService{db: db, inv: inv, log: log}
}

// GetProduct returns one product, cached for the near-static entity TTL.
func (s *ProductService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := s.inv.GetOrLoad(ctx, cache.ProductKey(id), cache.TTLEntity, &product, func(ctx context.Context) (interface{}, error) {
		var p models.Product
		if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, failf(ErrNotFound, "product %d not found", id)
			}
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListVendorProducts returns a vendor's product listing, cached on the hot
// list TTL.
func (s *ProductService) ListVendorProducts(ctx context.Context, vendorID uint) ([]models.Product, error) {
	var products []models.Product
	err := s.inv.GetOrLoad(ctx, cache.VendorProductsKey(vendorID), cache.TTLHotList, &products, func(ctx context.Context) (interface{}, error) {
		var rows []models.Product
		if err := s.db.WithContext(ctx).Where("vendor_id = ?", vendorID).Order("id").Find(&rows).Error; err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// VendorInventory returns a vendor's inventory aggregate, cached on the
// computed-aggregate TTL.
func (s *ProductService) VendorInventory(ctx context.Context, vendorID uint) (*InventorySummary, error) {
	var summary InventorySummary
	err := s.inv.GetOrLoad(ctx, cache.VendorInventoryKey(vendorID), cache.TTLAggregate, &summary, func(ctx context.Context) (interface{}, error) {
		return s.summarize(ctx, s.db.WithContext(ctx).Where("vendor_id = ?", vendorID))
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// AdminInventory returns the platform-wide inventory aggregate.
func (s *ProductService) AdminInventory(ctx context.Context) (*InventorySummary, error) {
	var summary InventorySummary
	err := s.inv.GetOrLoad(ctx, cache.AdminInventoryKey(), cache.TTLAggregate, &summary, func(ctx context.Context) (interface{}, error) {
		return s.summarize(ctx, s.db.WithContext(ctx))
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// summarize folds the matching products into an InventorySummary.
func (s *ProductService) summarize(ctx context.Context, q *gorm.DB) (InventorySummary, error) {
	var rows []models.Product
	if err := q.Find(&rows).Error; err != nil {
		return InventorySummary{}, err
	}
	var sum InventorySummary
	sum.Products = len(rows)
	for _, p := range rows {
		sum.TotalStock += p.TotalStock
		sum.ReservedStock += p.ReservedStock
		sum.WarehouseStock += p.WarehouseStock
		sum.AvailableStock += p.AvailableStock
	}
	return sum, nil
}
