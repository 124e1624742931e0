package memstore

import (
	"context"
	"fmt"
	"sort"

	"commerce-service/internal/models"
	"commerce-service/internal/store"
)

// CreateOrder stores the order and its items, assigning ids
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	defer s.lock()()

	if order.IdempotencyKey != "" {
		for _, existing := range s.data.orders {
			if existing.UserID == order.UserID && existing.IdempotencyKey == order.IdempotencyKey {
				return fmt.Errorf("%w: duplicate idempotency key %q", store.ErrConcurrentUpdate, order.IdempotencyKey)
			}
		}
	}

	s.data.orderSeq++
	now := s.now()
	order.ID = s.data.orderSeq
	order.CreatedAt = now
	order.UpdatedAt = now

	items := make([]models.OrderItem, len(order.Items))
	for i := range order.Items {
		s.data.orderItemSeq++
		order.Items[i].ID = s.data.orderItemSeq
		order.Items[i].OrderID = order.ID
		items[i] = order.Items[i]
	}

	row := *order
	row.Items = nil
	s.data.orders[order.ID] = row
	s.data.orderItems[order.ID] = items
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	defer s.lock()()
	return s.orderFor(id)
}

// LockOrderByID behaves like GetOrderByID; isolation comes from WithTx
func (s *Store) LockOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	defer s.lock()()
	return s.orderFor(id)
}

func (s *Store) orderFor(id int64) (*models.Order, error) {
	order, ok := s.data.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.Items = append([]models.OrderItem{}, s.data.orderItems[id]...)
	return &order, nil
}

// GetOrderByIdempotencyKey returns nil without error when no order matches
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	defer s.lock()()

	for id, order := range s.data.orders {
		if order.UserID == userID && order.IdempotencyKey == key {
			return s.orderFor(id)
		}
	}
	return nil, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	defer s.lock()()

	orders := []models.Order{}
	for id, order := range s.data.orders {
		if order.UserID != userID {
			continue
		}
		order.Items = append([]models.OrderItem{}, s.data.orderItems[id]...)
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	defer s.lock()()

	order, ok := s.data.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = s.now()
	s.data.orders[orderID] = order
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	defer s.lock()()

	_, ok := s.data.processed[eventID]
	return ok, nil
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	defer s.lock()()

	if _, ok := s.data.processed[eventID]; !ok {
		s.data.processed[eventID] = models.ProcessedEvent{
			EventID:     eventID,
			EventType:   eventType,
			ProcessedAt: s.now(),
		}
	}
	return nil
}
