package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"commerce-service/internal/apperror"
	"commerce-service/internal/models"
	"commerce-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func TestCheckoutPlacesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "10.00", 10)
	b := f.product(t, "B", "5.00", 4)
	f.add(t, 1, a.ID, 2)
	f.add(t, 1, b.ID, 1)

	order, err := f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, "1 Main St", order.ShippingAddress)
	assertDecimal(t, "25.00", order.TotalAmount)
	require.Len(t, order.Items, 2)
	assertDecimal(t, "20.00", order.Items[0].Subtotal)
	assertDecimal(t, "5.00", order.Items[1].Subtotal)

	assert.Equal(t, 8, f.stockOf(t, a.ID))
	assert.Equal(t, 3, f.stockOf(t, b.ID))

	cart, err := f.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	require.Len(t, f.events.placed, 1)
	assert.Equal(t, order.ID, f.events.placed[0].OrderID)
	assert.Equal(t, models.EventTypeOrderPlaced, f.events.placed[0].EventType)
}

func TestCheckoutTotalEqualsSumOfSubtotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prices := []string{"0.10", "19.99", "3.33", "1234.56"}
	for i, price := range prices {
		p := f.product(t, price, price, 100)
		f.add(t, 1, p.ID, i+3)
	}

	view, err := f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "addr"})
	require.NoError(t, err)

	order, err := f.repo.GetOrderByID(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, order.ItemsTotal().Equal(order.TotalAmount))
	assertDecimal(t, "7504.27", order.TotalAmount)
}

func TestCheckoutIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "10.00", 10)
	b := f.product(t, "B", "5.00", 3)
	f.add(t, 1, a.ID, 2)
	f.add(t, 1, b.ID, 3)

	// someone else bought B in the meantime
	require.NoError(t, f.repo.DecrementStock(ctx, b.ID, 2))

	_, err := f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "addr"})
	assertKind(t, apperror.KindInvalidState, err)
	assert.Contains(t, err.Error(), "insufficient stock for: B")

	assert.Equal(t, 10, f.stockOf(t, a.ID))
	assert.Equal(t, 1, f.stockOf(t, b.ID))

	orders, err := f.repo.GetOrdersByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)

	cart, err := f.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Empty(t, f.events.placed)
}

func TestCheckoutRejectsEmptyOrMissingCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "addr"})
	assertKind(t, apperror.KindNotFound, err)

	_, err = f.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	_, err = f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "addr"})
	assertKind(t, apperror.KindInvalidState, err)
	assert.Contains(t, err.Error(), "cart is empty")
}

func TestCheckoutRequiresShippingAddress(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "A", "1.00", 1)
	f.add(t, 1, p.ID, 1)

	_, err := f.checkout.Checkout(context.Background(), 1, CheckoutRequest{ShippingAddress: "   "})
	assertKind(t, apperror.KindValidation, err)
	assert.Equal(t, 1, f.stockOf(t, p.ID))
}

func TestCheckoutRejectsDeactivatedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "1.00", 5)
	f.add(t, 1, p.ID, 1)
	require.NoError(t, f.products.DeleteProduct(ctx, p.ID))

	_, err := f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "addr"})
	assertKind(t, apperror.KindInvalidState, err)
	assert.Equal(t, 5, f.stockOf(t, p.ID))
}

func TestCheckoutSnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "10.00", 5)
	f.add(t, 1, p.ID, 1)

	placed, err := f.checkout.Checkout(ctx, 1, CheckoutRequest{ShippingAddress: "addr"})
	require.NoError(t, err)

	p, err = f.repo.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	p.Price = decimal.RequireFromString("99.00")
	require.NoError(t, f.repo.UpdateProduct(ctx, p))

	order, err := f.orders.GetOrder(ctx, 1, placed.ID)
	require.NoError(t, err)
	assertDecimal(t, "10.00", order.Items[0].Price)
	assertDecimal(t, "10.00", order.TotalAmount)
	assert.Equal(t, "A", order.Items[0].ProductName)
}

func TestCheckoutIdempotencyKeyReturnsOriginalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "2.00", 10)
	f.add(t, 1, p.ID, 2)

	req := CheckoutRequest{ShippingAddress: "addr", IdempotencyKey: "req-1"}
	first, err := f.checkout.Checkout(ctx, 1, req)
	require.NoError(t, err)

	f.add(t, 1, p.ID, 3)
	again, err := f.checkout.Checkout(ctx, 1, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 8, f.stockOf(t, p.ID))
	assert.Len(t, f.events.placed, 1)

	cart, err := f.carts.GetCart(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	// the key is scoped to the user
	f.add(t, 2, p.ID, 1)
	other, err := f.checkout.Checkout(ctx, 2, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// callOrder records the cart and idempotency reads made inside transactions
type callOrder struct {
	store.Repository
	log *callLog
}

func (r *callOrder) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return r.Repository.WithTx(ctx, func(tx store.Repository) error {
		return fn(&callOrder{Repository: tx, log: r.log})
	})
}

func (r *callOrder) LockCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	r.log.record("LockCartByUserID")
	return r.Repository.LockCartByUserID(ctx, userID)
}

func (r *callOrder) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	r.log.record("GetOrderByIdempotencyKey")
	return r.Repository.GetOrderByIdempotencyKey(ctx, userID, key)
}

func TestCheckoutIdempotencyLookupHoldsCartLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "2.00", 10)
	f.add(t, 1, p.ID, 1)

	log := &callLog{}
	checkout := NewCheckoutService(&callOrder{Repository: f.repo, log: log}, NewUserLocks(nil, 0, zap.NewNop()), nil)

	req := CheckoutRequest{ShippingAddress: "addr", IdempotencyKey: "k"}
	first, err := checkout.Checkout(ctx, 1, req)
	require.NoError(t, err)
	require.Len(t, log.calls, 2)
	assert.Equal(t, []string{"LockCartByUserID", "GetOrderByIdempotencyKey"}, log.calls)

	again, err := checkout.Checkout(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestConcurrentCheckoutsWithSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "A", "2.00", 10)
	f.add(t, 1, p.ID, 2)
	checkout := NewCheckoutService(f.repo, NewUserLocks(nil, 0, zap.NewNop()), f.events)

	req := CheckoutRequest{ShippingAddress: "addr", IdempotencyKey: "same"}
	results := make([]*OrderView, 4)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			view, err := checkout.Checkout(ctx, 1, req)
			results[i] = view
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, view := range results {
		assert.Equal(t, results[0].ID, view.ID)
	}
	assert.Equal(t, 8, f.stockOf(t, p.ID))
	assert.Len(t, f.events.placed, 1)
}

func TestCheckoutSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	p := f.product(t, "A", "2.00", 10)
	f.add(t, 1, p.ID, 1)

	order, err := f.checkout.Checkout(context.Background(), 1, CheckoutRequest{ShippingAddress: "addr"})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 9, f.stockOf(t, p.ID))
}

func TestConcurrentCheckoutsOfLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Last", "5.00", 1)
	f.add(t, 1, p.ID, 1)
	f.add(t, 2, p.ID, 1)

	results := make([]error, 2)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			_, results[i] = f.checkout.Checkout(ctx, int64(i+1), CheckoutRequest{ShippingAddress: "addr"})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		kind := apperror.KindOf(err)
		assert.True(t, kind == apperror.KindInvalidState || kind == apperror.KindConflict, err.Error())
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.stockOf(t, p.ID))
}

func TestStockNeverNegativeUnderContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Hot", "1.00", 3)

	const buyers = 10
	for u := int64(1); u <= buyers; u++ {
		f.add(t, u, p.ID, 1)
	}

	var g errgroup.Group
	placed := make([]bool, buyers)
	for u := 0; u < buyers; u++ {
		u := u
		g.Go(func() error {
			_, err := f.checkout.Checkout(ctx, int64(u+1), CheckoutRequest{ShippingAddress: "addr"})
			placed[u] = err == nil
			return nil
		})
	}
	require.NoError(t, g.Wait())

	count := 0
	for _, ok := range placed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 3, count)
	assert.Equal(t, 0, f.stockOf(t, p.ID))
}

func TestPriceLinesStopsAtFirstShortfall(t *testing.T) {
	a := &models.Product{ID: 1, Name: "A", Price: decimal.RequireFromString("1.00"), Stock: 1, Active: true}
	b := &models.Product{ID: 2, Name: "B", Price: decimal.RequireFromString("1.00"), Stock: 0, Active: true}
	lines := []models.CartItem{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}}

	items, total, err := priceLines(lines, map[int64]*models.Product{1: a, 2: b})
	assertKind(t, apperror.KindInvalidState, err)
	assert.Nil(t, items)
	assert.True(t, total.IsZero())

	_, _, err = priceLines(lines, map[int64]*models.Product{1: a})
	assertKind(t, apperror.KindNotFound, err)
}

func TestPriceLinesRejectsNonPositiveQuantity(t *testing.T) {
	a := &models.Product{ID: 1, Name: "A", Price: decimal.RequireFromString("1.00"), Stock: 5, Active: true}

	for _, qty := range []int{0, -2} {
		items, _, err := priceLines([]models.CartItem{{ProductID: 1, Quantity: qty}}, map[int64]*models.Product{1: a})
		assertKind(t, apperror.KindInvalidState, err)
		assert.Nil(t, items)
	}
}
