package service

import (
	"context"
	"fmt"

	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// InventorySync copies stock levels from the database into the availability cache
type InventorySync struct {
	store  store.Repository
	cache  StockCache
	logger *zap.Logger
}

// NewInventorySync creates a new inventory sync. cache may be nil, in which
// case every call is a no-op.
func NewInventorySync(repo store.Repository, cache StockCache) *InventorySync {
	return &InventorySync{
		store:  repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// SyncAll writes the availability of every product to the cache
func (is *InventorySync) SyncAll(ctx context.Context) error {
	if is.cache == nil {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "InventorySync.SyncAll")
	defer span.End()

	is.logger.Info("Starting inventory sync to Redis")

	products, err := is.store.GetProducts(ctx, store.ProductFilter{IncludeInactive: true})
	if err != nil {
		util.InventoryCacheSyncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to get products: %w", err)
	}

	if err := is.write(ctx, products); err != nil {
		util.RecordError(span, err)
		return err
	}

	is.logger.Info("Inventory sync completed", zap.Int("count", len(products)))
	return nil
}

// RefreshProducts writes the availability of the given products to the cache
func (is *InventorySync) RefreshProducts(ctx context.Context, ids []int64) error {
	if is.cache == nil || len(ids) == 0 {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "InventorySync.RefreshProducts")
	defer span.End()

	products, err := is.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		util.InventoryCacheSyncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to get products: %w", err)
	}

	if err := is.write(ctx, products); err != nil {
		util.RecordError(span, err)
		return err
	}
	return nil
}

func (is *InventorySync) write(ctx context.Context, products []models.Product) error {
	levels := make(map[int64]int, len(products))
	for i := range products {
		levels[products[i].ID] = availableUnits(&products[i])
	}

	if err := is.cache.SetAvailabilities(ctx, levels); err != nil {
		util.InventoryCacheSyncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write availability cache: %w", err)
	}

	util.InventoryCacheSyncTotal.WithLabelValues("ok").Inc()
	return nil
}
