package worker

import (
	"context"
	"fmt"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// StockRefresher updates the availability read model for some products
type StockRefresher interface {
	RefreshProducts(ctx context.Context, ids []int64) error
}

// InventoryWorker keeps the availability cache in line with committed orders
type InventoryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        store.Repository
	inventory    StockRefresher
	logger       *zap.Logger
}

// NewInventoryWorker creates a new inventory worker. consumer may be nil when
// events are delivered in-process through LocalPublisher.
func NewInventoryWorker(consumer *broker.Consumer, repo store.Repository, inventory StockRefresher) *InventoryWorker {
	w := &InventoryWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		store:        repo,
		inventory:    inventory,
		logger:       util.ComponentLogger("inventory-worker"),
	}

	w.eventHandler.OnOrderPlaced(w.HandleOrderPlaced)
	w.eventHandler.OnOrderCancelled(w.HandleOrderCancelled)
	return w
}

// Start consumes order events until ctx is cancelled
func (w *InventoryWorker) Start(ctx context.Context) error {
	if w.consumer == nil {
		return fmt.Errorf("inventory worker has no consumer")
	}
	w.logger.Info("Starting inventory worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *InventoryWorker) Stop() error {
	w.logger.Info("Stopping inventory worker")
	if w.consumer == nil {
		return nil
	}
	return w.consumer.Close()
}

// HandleOrderPlaced refreshes the products an order drew stock from
func (w *InventoryWorker) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return w.handle(ctx, event.BaseEvent, models.ProductIDs(event.Items))
}

// HandleOrderCancelled refreshes the products a cancellation returned stock to
func (w *InventoryWorker) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return w.handle(ctx, event.BaseEvent, models.ProductIDs(event.Items))
}

func (w *InventoryWorker) handle(ctx context.Context, event models.BaseEvent, productIDs []int64) error {
	ctx, span := util.StartSpan(ctx, "InventoryWorker.handle")
	defer span.End()

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "error").Inc()
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := w.inventory.RefreshProducts(ctx, productIDs); err != nil {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "error").Inc()
		util.RecordError(span, err)
		return err
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "error").Inc()
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	util.EventsConsumedTotal.WithLabelValues(event.EventType, "ok").Inc()
	return nil
}

// LocalPublisher delivers order events straight to a worker, for deployments
// without Kafka
type LocalPublisher struct {
	worker *InventoryWorker
}

// NewLocalPublisher creates a publisher that calls w synchronously
func NewLocalPublisher(w *InventoryWorker) *LocalPublisher {
	return &LocalPublisher{worker: w}
}

// PublishOrderPlaced hands the event to the worker
func (p *LocalPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return p.worker.HandleOrderPlaced(ctx, event)
}

// PublishOrderCancelled hands the event to the worker
func (p *LocalPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return p.worker.HandleOrderCancelled(ctx, event)
}
