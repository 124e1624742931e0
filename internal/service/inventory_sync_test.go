package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncAllWritesEveryProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "1.00", 8)
	require.NoError(t, f.products.DeleteProduct(ctx, b.ID))

	sync := NewInventorySync(f.repo, f.cache)
	require.NoError(t, sync.SyncAll(ctx))

	assert.Equal(t, 5, f.cache.levels[a.ID])
	assert.Equal(t, 0, f.cache.levels[b.ID])
}

func TestRefreshProductsAfterCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "1.00", 5)
	sync := NewInventorySync(f.repo, f.cache)
	require.NoError(t, sync.SyncAll(ctx))

	f.add(t, 1, a.ID, 2)
	_, err := f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "addr"})
	require.NoError(t, err)
	assert.Equal(t, 5, f.cache.levels[a.ID])

	require.NoError(t, sync.RefreshProducts(ctx, []int64{a.ID, 999}))
	assert.Equal(t, 3, f.cache.levels[a.ID])
	assert.Equal(t, 5, f.cache.levels[b.ID])
	assert.NotContains(t, f.cache.levels, int64(999))
}

func TestInventorySyncReportsCacheFailure(t *testing.T) {
	f := newFixture(t)
	f.product(t, "A", "1.00", 5)
	f.cache.err = errors.New("redis down")

	sync := NewInventorySync(f.repo, f.cache)
	assert.Error(t, sync.SyncAll(context.Background()))
}

func TestInventorySyncWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.product(t, "A", "1.00", 5)

	sync := NewInventorySync(f.repo, nil)
	assert.NoError(t, sync.SyncAll(context.Background()))
	assert.NoError(t, sync.RefreshProducts(context.Background(), []int64{1}))
}
