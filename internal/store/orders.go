package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"commerce-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	orderColumns     = `id, user_id, total_amount, status, shipping_address, idempotency_key, created_at, updated_at`
	orderItemColumns = `id, order_id, product_id, product_name, quantity, price, subtotal`
)

// CreateOrder creates a new order together with its items
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total_amount, status, shipping_address, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.q, order, query,
		order.UserID, order.TotalAmount, order.Status, order.ShippingAddress, order.IdempotencyKey)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && isIdempotencyViolation(pqErr) {
		return fmt.Errorf("%w: duplicate idempotency key %q", ErrConcurrentUpdate, order.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := s.createOrderItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := sqlx.GetContext(ctx, s.q, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.Price, item.Subtotal)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// LockOrderByID retrieves an order and holds its row lock until the transaction ends
func (s *Store) LockOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	order, err := s.getOrder(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND idempotency_key = $2",
		userID, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return order, err
}

func (s *Store) getOrder(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.q, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items := []models.OrderItem{}
	err = sqlx.SelectContext(ctx, s.q, &items,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = $1 ORDER BY id", order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items

	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, s.q, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		orders[i].Items = []models.OrderItem{}
		byID[orders[i].ID] = &orders[i]
	}

	query, args, err := sqlx.In(
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}

	var items []models.OrderItem
	if err := sqlx.SelectContext(ctx, s.q, &items, s.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	for _, item := range items {
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	return orders, nil
}
