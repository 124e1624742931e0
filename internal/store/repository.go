package store

import (
	"context"
	"errors"

	"commerce-service/internal/models"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrStockConflict is returned when a guarded stock decrement matched no row
	ErrStockConflict = errors.New("stock changed concurrently")

	// ErrConcurrentUpdate is returned when the database aborted a transaction
	// because of a deadlock or serialization failure
	ErrConcurrentUpdate = errors.New("concurrent update detected")
)

// ProductFilter narrows catalog listings
type ProductFilter struct {
	Category        string
	IncludeInactive bool
}

// Repository is the persistence capability the services depend on.
// Every method runs against the transaction the repository is bound to, if any.
type Repository interface {
	// WithTx runs fn inside a single transaction. A nil return commits,
	// an error or panic rolls back. Nested calls reuse the outer transaction.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	// LockProductsByIDs row-locks the products in ascending id order
	LockProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error

	GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	LockCartByUserID(ctx context.Context, userID int64) (*models.Cart, error)
	// CreateCart returns the user's cart, creating it if it does not exist yet
	CreateCart(ctx context.Context, userID int64) (*models.Cart, error)
	// AddCartItem inserts a line or increments the quantity of the existing one
	AddCartItem(ctx context.Context, cartID, productID int64, quantity int) (*models.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) error

	// CreateOrder inserts the order and its items, filling in generated ids
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	LockOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// GetOrderByIdempotencyKey returns nil without error when no order matches
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Postgres error codes that mean "retry the transaction"
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// idempotencyIndex guards one order per user and idempotency key
const idempotencyIndex = "idx_orders_idempotency"

// IsConcurrencyError reports whether err is a stock guard miss or a
// transaction aborted by the database because of concurrent writers
func IsConcurrencyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStockConflict) || errors.Is(err, ErrConcurrentUpdate) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected ||
			isIdempotencyViolation(pqErr)
	}
	return false
}

func isIdempotencyViolation(pqErr *pq.Error) bool {
	return pqErr.Code == pqUniqueViolation && pqErr.Constraint == idempotencyIndex
}
