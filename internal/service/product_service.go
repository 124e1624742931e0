package service

import (
	"context"
	"fmt"
	"strings"

	"commerce-service/internal/apperror"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Availability sources
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
)

// ProductService handles catalog reads and admin writes
type ProductService struct {
	store  store.Repository
	cache  StockCache
	logger *zap.Logger
}

// NewProductService creates a new product service. cache may be nil.
func NewProductService(repo store.Repository, cache StockCache) *ProductService {
	return &ProductService{
		store:  repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ListProducts returns active products, optionally limited to one category
func (s *ProductService) ListProducts(ctx context.Context, category string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts")
	defer span.End()

	products, err := s.store.GetProducts(ctx, store.ProductFilter{Category: strings.TrimSpace(category)})
	if err != nil {
		util.RecordError(span, err)
		return nil, storeError(err, "product not found")
	}
	return products, nil
}

// GetProduct returns a product by id
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, storeError(err, fmt.Sprintf("product not found: %d", id))
	}
	return product, nil
}

// CreateProduct adds a product to the catalog
func (s *ProductService) CreateProduct(ctx context.Context, req ProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	if err := validateProduct(req); err != nil {
		return nil, err
	}

	product := &models.Product{Active: true}
	applyProductRequest(product, req)
	if err := s.store.CreateProduct(ctx, product); err != nil {
		util.RecordError(span, err)
		return nil, storeError(err, "product not found")
	}

	s.cacheAvailability(ctx, product)
	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	return product, nil
}

// UpdateProduct overwrites a product. The row is locked so that a concurrent
// checkout cannot interleave with the stock overwrite.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, req ProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateProduct")
	defer span.End()

	if err := validateProduct(req); err != nil {
		return nil, err
	}

	var updated *models.Product
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		locked, err := tx.LockProductsByIDs(ctx, []int64{id})
		if err != nil {
			return storeError(err, "product not found")
		}
		if len(locked) == 0 {
			return apperror.Newf(apperror.KindNotFound, "product not found: %d", id)
		}

		product := locked[0]
		applyProductRequest(&product, req)
		if err := tx.UpdateProduct(ctx, &product); err != nil {
			return storeError(err, fmt.Sprintf("product not found: %d", id))
		}
		updated = &product
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.cacheAvailability(ctx, updated)
	return updated, nil
}

// DeleteProduct deactivates a product; existing orders keep referencing it
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductService.DeleteProduct")
	defer span.End()

	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		locked, err := tx.LockProductsByIDs(ctx, []int64{id})
		if err != nil {
			return storeError(err, "product not found")
		}
		if len(locked) == 0 {
			return apperror.Newf(apperror.KindNotFound, "product not found: %d", id)
		}

		product := locked[0]
		product.Active = false
		return storeError(tx.UpdateProduct(ctx, &product), fmt.Sprintf("product not found: %d", id))
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	s.logger.Info("Product deactivated", zap.Int64("product_id", id))
	return nil
}

// GetAvailability reads the cached stock level, falling back to the database
// and repopulating the cache on a miss
func (s *ProductService) GetAvailability(ctx context.Context, id int64) (*AvailabilityView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetAvailability")
	defer span.End()

	if s.cache != nil {
		available, ok, err := s.cache.GetAvailability(ctx, id)
		if err != nil {
			s.logger.Warn("Availability cache read failed, falling back to DB",
				zap.Int64("product_id", id),
				zap.Error(err))
		} else if ok {
			return &AvailabilityView{ProductID: id, Available: available, Source: SourceCache}, nil
		}
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, storeError(err, fmt.Sprintf("product not found: %d", id))
	}

	s.cacheAvailability(ctx, product)
	return &AvailabilityView{ProductID: id, Available: availableUnits(product), Source: SourceDatabase}, nil
}

// SeedCatalog inserts the sample catalog when no products exist yet
func (s *ProductService) SeedCatalog(ctx context.Context) (int, error) {
	seeded := 0
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		existing, err := tx.GetProducts(ctx, store.ProductFilter{IncludeInactive: true})
		if err != nil {
			return storeError(err, "product not found")
		}
		if len(existing) > 0 {
			return nil
		}

		for _, p := range DefaultCatalog() {
			product := p
			if err := tx.CreateProduct(ctx, &product); err != nil {
				return storeError(err, "product not found")
			}
			seeded++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if seeded > 0 {
		s.logger.Info("Sample catalog loaded", zap.Int("count", seeded))
	}
	return seeded, nil
}

func (s *ProductService) cacheAvailability(ctx context.Context, product *models.Product) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetAvailability(ctx, product.ID, availableUnits(product)); err != nil {
		s.logger.Warn("Failed to cache availability",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
	}
}

// availableUnits is what customers may order: inactive products report zero
func availableUnits(product *models.Product) int {
	if !product.Active {
		return 0
	}
	return product.Stock
}

func validateProduct(req ProductRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperror.Validation("name is required")
	}
	if req.Price.IsNegative() {
		return apperror.Validation("price must not be negative")
	}
	if req.Stock == nil || *req.Stock < 0 {
		return apperror.Validation("stock must be zero or more")
	}
	return nil
}

func applyProductRequest(product *models.Product, req ProductRequest) {
	product.Name = strings.TrimSpace(req.Name)
	product.Description = req.Description
	product.Price = req.Price.Round(2)
	product.Stock = *req.Stock
	product.Category = strings.TrimSpace(req.Category)
	product.ImageURL = req.ImageURL
}

// DefaultCatalog is the sample catalog loaded on an empty database
func DefaultCatalog() []models.Product {
	return []models.Product{
		{
			Name:        "iPhone 15 Pro",
			Description: "Latest Apple smartphone with A17 Pro chip",
			Price:       decimal.RequireFromString("999.99"),
			Stock:       50,
			Category:    "Electronics",
			ImageURL:    "https://example.com/iphone15.jpg",
			Active:      true,
		},
		{
			Name:        "MacBook Pro 14\"",
			Description: "Apple M3 Pro laptop with 18GB RAM",
			Price:       decimal.RequireFromString("1999.99"),
			Stock:       30,
			Category:    "Electronics",
			ImageURL:    "https://example.com/macbook.jpg",
			Active:      true,
		},
		{
			Name:        "Sony WH-1000XM5",
			Description: "Premium noise-cancelling headphones",
			Price:       decimal.RequireFromString("349.99"),
			Stock:       100,
			Category:    "Electronics",
			ImageURL:    "https://example.com/sony.jpg",
			Active:      true,
		},
		{
			Name:        "Nike Air Max",
			Description: "Classic running shoes",
			Price:       decimal.RequireFromString("129.99"),
			Stock:       200,
			Category:    "Shoes",
			ImageURL:    "https://example.com/nike.jpg",
			Active:      true,
		},
		{
			Name:        "Levi's 501 Jeans",
			Description: "Original fit jeans",
			Price:       decimal.RequireFromString("79.99"),
			Stock:       150,
			Category:    "Clothing",
			ImageURL:    "https://example.com/levis.jpg",
			Active:      true,
		},
	}
}
