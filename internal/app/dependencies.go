package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// Dependencies содержит репозитории выбранного хранилища.
type Dependencies struct {
	Products    domain.ProductRepository
	Images      domain.ProductImageRepository
	Users       domain.UserRepository
	Orders      domain.OrderRepository
	Placer      domain.OrderPlacer
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	// Ping проверяет доступность хранилища для health checks.
	Ping  func(ctx context.Context) error
	close func() error
}

// Close освобождает соединения хранилища.
func (d *Dependencies) Close() error {
	if d == nil || d.close == nil {
		return nil
	}
	return d.close()
}

// NewDependencies открывает хранилище, выбранное в cfg.StorageDriver.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Warn("using in-memory storage: data is lost on restart")
		return newMemoryDependencies(), nil
	case StorageDriverPostgres:
		return newPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies() *Dependencies {
	store := memory.NewStore()
	orders := memory.NewOrderRepository(store)
	return &Dependencies{
		Products:    memory.NewProductRepository(store),
		Images:      memory.NewProductImageRepository(store),
		Users:       memory.NewUserRepository(store),
		Orders:      orders,
		Placer:      orders,
		Outbox:      store.Outbox(),
		Idempotency: memory.NewIdempotencyRepository(),
		Ping:        func(context.Context) error { return store.Ping() },
	}
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		version, applied, err := store.MigrationStatus(ctx)
		if err == nil {
			logger.WithFields(log.Fields{"version": version, "applied": applied}).Info("postgres schema is up to date")
		}
	}

	orders := postgres.NewOrderRepository(store)
	return &Dependencies{
		Products:    postgres.NewProductRepository(store),
		Images:      postgres.NewProductImageRepository(store),
		Users:       postgres.NewUserRepository(store),
		Orders:      orders,
		Placer:      orders,
		Outbox:      postgres.NewOutboxRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Ping:        store.Ping,
		close:       store.Close,
	}, nil
}
