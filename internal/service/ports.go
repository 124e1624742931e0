package service

import (
	"context"
	"time"

	"commerce-service/internal/models"
)

// Locker serializes work on a key across service instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher emits order lifecycle events after commit
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// StockCache is the eventually consistent availability read model
type StockCache interface {
	SetAvailability(ctx context.Context, productID int64, available int) error
	SetAvailabilities(ctx context.Context, levels map[int64]int) error
	GetAvailability(ctx context.Context, productID int64) (available int, ok bool, err error)
}
