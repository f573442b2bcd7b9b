package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/cache"
	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders-api/internal/health"
	"github.com/vladislavdragonenkov/orders-api/internal/metrics"
	"github.com/vladislavdragonenkov/orders-api/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders-api/internal/storage/postgres"
)

// runtimeDependencies - репозитории выбранного хранилища и проверки их здоровья.
type runtimeDependencies struct {
	orderRepo       domain.OrderRepository
	productRepo     domain.ProductRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	cacheChecker   healthcheck.Checker

	closers []func() error
}

// closeFn закрывает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initRuntimeDependencies открывает хранилище по StorageDriver и подключает
// Redis-кэш каталога, если задан RedisAddr. События заказов пишутся в outbox
// только при настроенной Kafka.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry, m *metrics.OrderMetrics) (*runtimeDependencies, error) {
	withOutbox := len(cfg.KafkaBrokers) > 0
	deps := &runtimeDependencies{}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		outbox := memory.NewOutboxRepository()
		var opts []memory.OrderOption
		if withOutbox {
			opts = append(opts, memory.WithOutbox(outbox))
		}
		deps.orderRepo = memory.NewOrderRepository(opts...)
		deps.productRepo = memory.NewProductRepository()
		deps.outboxRepo = outbox
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.storageChecker = healthcheck.NewCriticalChecker("storage", func(context.Context) error { return nil })
		logger.Info("using in-memory storage")

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres_dsn is required for %q storage driver", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN,
			postgres.WithMaxOpenConns(cfg.PostgresMaxOpenConns),
			postgres.WithMaxIdleConns(cfg.PostgresMaxIdleConns),
			postgres.WithConnMaxLifetime(cfg.PostgresConnMaxLifetime),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = deps.closeFn()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		var opts []postgres.OrderRepositoryOption
		if withOutbox {
			opts = append(opts, postgres.WithOutboxEvents())
		}
		deps.orderRepo = postgres.NewOrderRepository(store, opts...)
		deps.productRepo = postgres.NewProductRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.storageChecker = healthcheck.NewCriticalChecker("storage", store.Ping)
		logger.Info("using postgres storage")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		initProductCache(ctx, cfg, deps, logger, m)
	}

	return deps, nil
}

// initProductCache оборачивает каталог Redis-кэшем. Недоступный Redis
// не мешает запуску: сервис работает напрямую с хранилищем.
func initProductCache(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry, m *metrics.OrderMetrics) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	productCache := cache.NewProductCache(deps.productRepo, rdb,
		cache.WithTTL(cfg.ProductCacheTTL),
		cache.WithLogger(logger.WithField("layer", "product-cache")),
		cache.WithMetrics(m),
	)
	if err := productCache.Ping(ctx); err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis is unavailable, product cache disabled")
		_ = rdb.Close()
		return
	}

	deps.productRepo = productCache
	deps.cacheChecker = healthcheck.NewOptionalChecker("cache", productCache.Ping)
	deps.closers = append(deps.closers, rdb.Close)
	logger.WithField("addr", cfg.RedisAddr).Info("product cache enabled")
}
