// Package memstore is an in-process Repository used by tests and by the
// memory store driver. Transactions are serialized behind one mutex and run
// against a copy of the dataset that replaces the live one on commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/store"
)

type dataset struct {
	products   map[int64]models.Product
	carts      map[int64]models.Cart
	cartByUser map[int64]int64
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64][]models.OrderItem
	processed  map[string]models.ProcessedEvent

	productSeq   int64
	cartSeq      int64
	cartItemSeq  int64
	orderSeq     int64
	orderItemSeq int64
}

func newDataset() *dataset {
	return &dataset{
		products:   map[int64]models.Product{},
		carts:      map[int64]models.Cart{},
		cartByUser: map[int64]int64{},
		cartItems:  map[int64]models.CartItem{},
		orders:     map[int64]models.Order{},
		orderItems: map[int64][]models.OrderItem{},
		processed:  map[string]models.ProcessedEvent{},
	}
}

func (d *dataset) clone() *dataset {
	c := *d
	c.products = make(map[int64]models.Product, len(d.products))
	for k, v := range d.products {
		c.products[k] = v
	}
	c.carts = make(map[int64]models.Cart, len(d.carts))
	for k, v := range d.carts {
		c.carts[k] = v
	}
	c.cartByUser = make(map[int64]int64, len(d.cartByUser))
	for k, v := range d.cartByUser {
		c.cartByUser[k] = v
	}
	c.cartItems = make(map[int64]models.CartItem, len(d.cartItems))
	for k, v := range d.cartItems {
		c.cartItems[k] = v
	}
	c.orders = make(map[int64]models.Order, len(d.orders))
	for k, v := range d.orders {
		c.orders[k] = v
	}
	c.orderItems = make(map[int64][]models.OrderItem, len(d.orderItems))
	for k, v := range d.orderItems {
		c.orderItems[k] = append([]models.OrderItem(nil), v...)
	}
	c.processed = make(map[string]models.ProcessedEvent, len(d.processed))
	for k, v := range d.processed {
		c.processed[k] = v
	}
	return &c
}

// Store keeps every table in memory
type Store struct {
	mu   *sync.Mutex
	data *dataset
	inTx bool
	now  func() time.Time
}

var _ store.Repository = (*Store)(nil)

// Option customizes a Store
type Option func(*Store)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory store
func New(opts ...Option) *Store {
	s := &Store{
		mu:   &sync.Mutex{},
		data: newDataset(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTx runs fn against a private copy of the dataset and publishes it if fn succeeds
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Store{mu: s.mu, data: s.data.clone(), inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	*s.data = *tx.data
	return nil
}

// CreateProduct creates a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	defer s.lock()()

	s.data.productSeq++
	now := s.now()
	product.ID = s.data.productSeq
	product.CreatedAt = now
	product.UpdatedAt = now
	s.data.products[product.ID] = *product
	return nil
}

// UpdateProduct overwrites the mutable product fields
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	defer s.lock()()

	existing, ok := s.data.products[product.ID]
	if !ok {
		return store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	s.data.products[product.ID] = *product
	return nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	defer s.lock()()

	product, ok := s.data.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

// GetProducts retrieves catalog products in id order
func (s *Store) GetProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	defer s.lock()()

	products := []models.Product{}
	for _, p := range s.data.products {
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// GetProductsByIDs retrieves the products that exist among ids
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	defer s.lock()()
	return s.productsByIDs(ids), nil
}

// LockProductsByIDs behaves like GetProductsByIDs; isolation comes from WithTx
func (s *Store) LockProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	defer s.lock()()
	return s.productsByIDs(ids), nil
}

func (s *Store) productsByIDs(ids []int64) []models.Product {
	seen := make(map[int64]bool, len(ids))
	products := []models.Product{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := s.data.products[id]; ok {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

// DecrementStock removes quantity units, refusing to go below zero
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return models.ErrInvalidQuantity
	}
	defer s.lock()()

	p, ok := s.data.products[productID]
	if !ok || p.Stock < quantity {
		return store.ErrStockConflict
	}
	p.Stock -= quantity
	p.UpdatedAt = s.now()
	s.data.products[productID] = p
	return nil
}

// IncrementStock returns quantity units to the pool
func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return models.ErrInvalidQuantity
	}
	defer s.lock()()

	p, ok := s.data.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock += quantity
	p.UpdatedAt = s.now()
	s.data.products[productID] = p
	return nil
}
