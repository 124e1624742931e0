package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"commerce-service/internal/apperror"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutService converts carts into orders
type CheckoutService struct {
	store     store.Repository
	locks     *UserLocks
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. publisher may be nil.
func NewCheckoutService(repo store.Repository, locks *UserLocks, publisher EventPublisher) *CheckoutService {
	return &CheckoutService{
		store:     repo,
		locks:     locks,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Checkout places an order for everything in the user's cart. Stock is
// checked and decremented, the order written and the cart emptied in one
// transaction; on any failure none of it happens.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*OrderView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	address := strings.TrimSpace(req.ShippingAddress)
	if address == "" {
		return nil, apperror.Validation("shipping address is required")
	}

	order, replayed, err := s.checkout(ctx, userID, address, strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		util.RecordError(span, err)
		s.logger.Info("Checkout rejected", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	if replayed {
		s.logger.Info("Duplicate checkout request detected",
			zap.String("idempotency_key", order.IdempotencyKey),
			zap.Int64("order_id", order.ID))
		return newOrderView(order), nil
	}

	util.OrdersPlacedTotal.Inc()
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)))

	s.publishPlaced(ctx, order)
	return newOrderView(order), nil
}

func (s *CheckoutService) checkout(ctx context.Context, userID int64, address, idempotencyKey string) (*models.Order, bool, error) {
	unlock, err := s.locks.Acquire(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	var order *models.Order
	var replayed bool

	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		cart, err := tx.LockCartByUserID(ctx, userID)
		missing := errors.Is(err, store.ErrNotFound)
		if err != nil && !missing {
			return storeError(err, "cart not found")
		}

		// looked up under the cart lock so a request racing the original sees its order
		if idempotencyKey != "" {
			existing, err := tx.GetOrderByIdempotencyKey(ctx, userID, idempotencyKey)
			if err != nil {
				return storeError(err, "order not found")
			}
			if existing != nil {
				order, replayed = existing, true
				return nil
			}
		}

		if missing {
			return apperror.NotFound("cart not found")
		}
		if len(cart.Items) == 0 {
			return apperror.InvalidState("cart is empty")
		}

		ids := cart.ProductIDs()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		products, err := tx.LockProductsByIDs(ctx, ids)
		if err != nil {
			return storeError(err, "product not found")
		}
		byID := make(map[int64]*models.Product, len(products))
		for i := range products {
			byID[products[i].ID] = &products[i]
		}

		items, total, err := priceLines(cart.Items, byID)
		if err != nil {
			return err
		}

		placed := &models.Order{
			UserID:          userID,
			TotalAmount:     total,
			Status:          models.OrderStatusConfirmed,
			ShippingAddress: address,
			IdempotencyKey:  idempotencyKey,
			Items:           items,
		}
		if err := tx.CreateOrder(ctx, placed); err != nil {
			return storeError(err, "order not found")
		}

		for _, item := range items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return storeError(err, fmt.Sprintf("product not found: %d", item.ProductID))
			}
		}

		if err := tx.ClearCart(ctx, cart.ID); err != nil {
			return storeError(err, "cart not found")
		}

		order = placed
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, replayed, nil
}

// priceLines snapshots every cart line at the current price, stopping at the
// first line that cannot be fulfilled
func priceLines(lines []models.CartItem, products map[int64]*models.Product) ([]models.OrderItem, decimal.Decimal, error) {
	items := make([]models.OrderItem, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, decimal.Zero, apperror.Newf(apperror.KindNotFound, "product not found: %d", line.ProductID)
		}
		if !product.Active {
			return nil, decimal.Zero, apperror.Newf(apperror.KindInvalidState, "product is not available: %s", product.Name)
		}
		if product.Stock < line.Quantity {
			return nil, decimal.Zero, apperror.Newf(apperror.KindInvalidState, "insufficient stock for: %s", product.Name)
		}

		item, err := models.NewOrderItem(product, line.Quantity)
		if err != nil {
			return nil, decimal.Zero, apperror.Newf(apperror.KindInvalidState, "invalid quantity for: %s", product.Name)
		}
		total = total.Add(item.Subtotal)
		items = append(items, item)
	}

	return items, total, nil
}

func (s *CheckoutService) publishPlaced(ctx context.Context, order *models.Order) {
	if s.publisher == nil {
		return
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       models.ItemDataFrom(order.Items),
	}

	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}
