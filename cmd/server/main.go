package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-service/config"
	"commerce-service/internal/api"
	"commerce-service/internal/broker"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/service"
	"commerce-service/internal/store"
	"commerce-service/internal/store/memstore"
	"commerce-service/internal/util"
	"commerce-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// repository is the store surface the server needs beyond the domain methods
type repository interface {
	store.Repository
	Ping(ctx context.Context) error
	Close() error
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting commerce service")

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()

	repo, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer repo.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	var (
		locker service.Locker
		cache  service.StockCache
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker, cache = redisClient, redisClient
		logger.Info("Redis connected")
	} else {
		logger.Info("Redis disabled, using row locks only and no availability cache")
	}

	inventorySync := service.NewInventorySync(repo, cache)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var publisher service.EventPublisher
	var inventoryWorker *worker.InventoryWorker
	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized")

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		inventoryWorker = worker.NewInventoryWorker(consumer, repo, inventorySync)
		go func() {
			if err := inventoryWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Inventory worker error", zap.Error(err))
			}
		}()
	} else {
		inventoryWorker = worker.NewInventoryWorker(nil, repo, inventorySync)
		publisher = worker.NewLocalPublisher(inventoryWorker)
		logger.Info("Kafka disabled, delivering order events in process")
	}

	locks := service.NewUserLocks(locker, cfg.Business.CartLockTTL, util.ComponentLogger("locks"))
	products := service.NewProductService(repo, cache)

	if cfg.Business.SeedCatalog {
		if _, err := products.SeedCatalog(ctx); err != nil {
			logger.Error("Failed to seed catalog", zap.Error(err))
		}
	}
	if err := inventorySync.SyncAll(ctx); err != nil {
		logger.Warn("Failed to sync inventory to Redis", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Products: products,
		Carts:    service.NewCartService(repo, locks),
		Checkout: service.NewCheckoutService(repo, locks, publisher),
		Orders:   service.NewOrderService(repo, publisher),
	}, repo, cfg.Auth, cfg.Business.CheckoutRetryAttempts)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := inventoryWorker.Stop(); err != nil {
		logger.Warn("Failed to stop inventory worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memstore.New(), nil
	case config.DriverPostgres:
		db, err := store.NewStore(cfg.URL, store.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := db.MigrateUp(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to migrate: %w", err)
			}
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
