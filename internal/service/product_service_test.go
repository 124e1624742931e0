package service

import (
	"context"
	"errors"
	"testing"

	"commerce-service/internal/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	product, err := f.products.CreateProduct(ctx, ProductRequest{
		Name:     "  Lamp ",
		Price:    decimal.RequireFromString("12.499"),
		Stock:    intPtr(7),
		Category: "Home",
	})
	require.NoError(t, err)
	assert.NotZero(t, product.ID)
	assert.Equal(t, "Lamp", product.Name)
	assert.True(t, product.Active)
	assertDecimal(t, "12.50", product.Price)
	assert.Equal(t, 7, f.cache.levels[product.ID])
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]ProductRequest{
		"blank name":     {Name: " ", Stock: intPtr(1)},
		"negative price": {Name: "A", Price: decimal.NewFromInt(-1), Stock: intPtr(1)},
		"missing stock":  {Name: "A"},
		"negative stock": {Name: "A", Stock: intPtr(-1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.products.CreateProduct(ctx, req)
			assertKind(t, apperror.KindValidation, err)
		})
	}

	products, err := f.products.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestListProductsByCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []ProductRequest{
		{Name: "Phone", Category: "Electronics", Stock: intPtr(1)},
		{Name: "Shoe", Category: "Shoes", Stock: intPtr(1)},
		{Name: "Radio", Category: "Electronics", Stock: intPtr(1)},
	} {
		_, err := f.products.CreateProduct(ctx, req)
		require.NoError(t, err)
	}

	all, err := f.products.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	electronics, err := f.products.ListProducts(ctx, "Electronics")
	require.NoError(t, err)
	require.Len(t, electronics, 2)
	assert.Equal(t, "Phone", electronics[0].Name)
	assert.Equal(t, "Radio", electronics[1].Name)

	none, err := f.products.ListProducts(ctx, "Garden")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteProductDeactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Old", "1.00", 3)

	require.NoError(t, f.products.DeleteProduct(ctx, p.ID))

	listed, err := f.products.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, listed)

	got, err := f.products.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.Stock)

	err = f.products.DeleteProduct(ctx, 999)
	assertKind(t, apperror.KindNotFound, err)
}

func TestUpdateProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Old", "1.00", 3)

	updated, err := f.products.UpdateProduct(ctx, p.ID, ProductRequest{
		Name:  "New",
		Price: decimal.RequireFromString("2.00"),
		Stock: intPtr(9),
	})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.Equal(t, 9, f.stockOf(t, p.ID))
	assert.Equal(t, 9, f.cache.levels[p.ID])

	_, err = f.products.UpdateProduct(ctx, 999, ProductRequest{Name: "X", Stock: intPtr(1)})
	assertKind(t, apperror.KindNotFound, err)
}

func TestGetProductMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.products.GetProduct(context.Background(), 42)
	assertKind(t, apperror.KindNotFound, err)
}

func TestGetAvailabilityPrefersCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "1.00", 5)
	f.cache.levels[p.ID] = 2

	view, err := f.products.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Available)
	assert.Equal(t, SourceCache, view.Source)
}

func TestGetAvailabilityFallsBackToDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "1.00", 5)

	view, err := f.products.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Available)
	assert.Equal(t, SourceDatabase, view.Source)
	assert.Equal(t, 5, f.cache.levels[p.ID])

	view, err = f.products.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, view.Source)
}

func TestGetAvailabilityWhenCacheFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "1.00", 5)
	f.cache.err = errors.New("redis down")

	view, err := f.products.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Available)
	assert.Equal(t, SourceDatabase, view.Source)

	_, err = f.products.GetAvailability(ctx, 999)
	assertKind(t, apperror.KindNotFound, err)
}

func TestAvailabilityOfInactiveProductIsZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "1.00", 5)
	require.NoError(t, f.products.DeleteProduct(ctx, p.ID))

	view, err := f.products.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, view.Available)
}

func TestSeedCatalogRunsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seeded, err := f.products.SeedCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCatalog()), seeded)

	seeded, err = f.products.SeedCatalog(ctx)
	require.NoError(t, err)
	assert.Zero(t, seeded)

	electronics, err := f.products.ListProducts(ctx, "Electronics")
	require.NoError(t, err)
	assert.Len(t, electronics, 3)
}

func TestProductServiceWithoutCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "1.00", 5)
	products := NewProductService(f.repo, nil)

	view, err := products.GetAvailability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, view.Source)
	assert.Equal(t, 5, view.Available)
}
