package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"commerce-service/internal/apperror"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles order history and status transitions
type OrderService struct {
	store     store.Repository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service. publisher may be nil.
func NewOrderService(repo store.Repository, publisher EventPublisher) *OrderService {
	return &OrderService{
		store:     repo,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// GetOrderHistory returns the user's orders, most recent first
func (s *OrderService) GetOrderHistory(ctx context.Context, userID int64) ([]OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrderHistory")
	defer span.End()

	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		util.RecordError(span, err)
		return nil, storeError(err, "order not found")
	}

	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, *newOrderView(&orders[i]))
	}
	return views, nil
}

// GetOrder returns one of the user's orders. Orders of other users are
// reported as missing.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err == nil && order.UserID != userID {
		err = store.ErrNotFound
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, storeError(err, notFoundOrder(orderID))
	}
	return newOrderView(order), nil
}

// CancelOrder moves a PENDING or CONFIRMED order to CANCELLED and puts its
// quantities back into stock, atomically
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	var cancelled *models.Order
	var restored int

	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		order, err := tx.LockOrderByID(ctx, orderID)
		if err == nil && order.UserID != userID {
			err = store.ErrNotFound
		}
		if err != nil {
			return storeError(err, notFoundOrder(orderID))
		}

		if !order.Status.Cancellable() {
			return apperror.Newf(apperror.KindInvalidState, "order cannot be cancelled in status %s", order.Status)
		}

		items := append([]models.OrderItem(nil), order.Items...)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
		for _, item := range items {
			if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return storeError(err, "product not found")
			}
			restored += item.Quantity
		}

		if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
			return storeError(err, notFoundOrder(orderID))
		}

		cancelled, err = tx.GetOrderByID(ctx, order.ID)
		return storeError(err, notFoundOrder(orderID))
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	util.StockUnitsRestoredTotal.Add(float64(restored))
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", cancelled.ID),
		zap.Int64("user_id", userID),
		zap.Int("units_restored", restored))

	s.publishCancelled(ctx, cancelled)
	return newOrderView(cancelled), nil
}

func notFoundOrder(orderID int64) string {
	return fmt.Sprintf("order not found: %d", orderID)
}

func (s *OrderService) publishCancelled(ctx context.Context, order *models.Order) {
	if s.publisher == nil {
		return
	}

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Items:   models.ItemDataFrom(order.Items),
	}

	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
