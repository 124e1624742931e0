package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"commerce-service/internal/apperror"
	"commerce-service/internal/models"
	"commerce-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu        sync.Mutex
	placed    []*models.OrderPlacedEvent
	cancelled []*models.OrderCancelledEvent
	err       error
}

func (p *recordingPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, event)
	return p.err
}

func (p *recordingPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, event)
	return p.err
}

type fakeCache struct {
	mu     sync.Mutex
	levels map[int64]int
	err    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{levels: map[int64]int{}}
}

func (c *fakeCache) SetAvailability(ctx context.Context, productID int64, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.levels[productID] = available
	return nil
}

func (c *fakeCache) SetAvailabilities(ctx context.Context, levels map[int64]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for id, n := range levels {
		c.levels[id] = n
	}
	return nil
}

func (c *fakeCache) GetAvailability(ctx context.Context, productID int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, false, c.err
	}
	n, ok := c.levels[productID]
	return n, ok, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released int
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, busy := l.held[key]; busy {
		return "", false, nil
	}
	l.held[key] = key + "-token"
	return key + "-token", true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("lock not held")
	}
	delete(l.held, key)
	l.released++
	return nil
}

type fixture struct {
	repo     *memstore.Store
	locker   *fakeLocker
	events   *recordingPublisher
	cache    *fakeCache
	carts    *CartService
	checkout *CheckoutService
	orders   *OrderService
	products *ProductService
}

func newFixture(t *testing.T, opts ...memstore.Option) *fixture {
	t.Helper()

	repo := memstore.New(opts...)
	locker := newFakeLocker()
	events := &recordingPublisher{}
	cache := newFakeCache()
	locks := NewUserLocks(locker, time.Second, zap.NewNop())

	return &fixture{
		repo:     repo,
		locker:   locker,
		events:   events,
		cache:    cache,
		carts:    NewCartService(repo, locks),
		checkout: NewCheckoutService(repo, locks, events),
		orders:   NewOrderService(repo, events),
		products: NewProductService(repo, cache),
	}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: "Test",
		Active:   true,
	}
	require.NoError(t, f.repo.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) stockOf(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.repo.GetProductByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) add(t *testing.T, userID, productID int64, quantity int) *CartView {
	t.Helper()
	view, err := f.carts.AddItem(context.Background(), userID, AddCartItemRequest{ProductID: productID, Quantity: quantity})
	require.NoError(t, err)
	return view
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func assertKind(t *testing.T, want apperror.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, apperror.KindOf(err), err.Error())
}
