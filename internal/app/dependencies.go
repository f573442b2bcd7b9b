package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-api/internal/metrics"
	"github.com/vladislavdragonenkov/orders-api/internal/service/idempotency"
	ordersvc "github.com/vladislavdragonenkov/orders-api/internal/service/order"
	"github.com/vladislavdragonenkov/orders-api/internal/service/outbox"
	productsvc "github.com/vladislavdragonenkov/orders-api/internal/service/product"
)

// Dependencies содержит сервисы и фоновые воркеры приложения.
type Dependencies struct {
	Orders   *ordersvc.Service
	Products *productsvc.Service
	Guard    *idempotency.Guard
	Cleanup  *idempotency.CleanupWorker
	// Relay nil, если Kafka не настроена.
	Relay  *outbox.Relay
	Logger *log.Entry
}

// NewDependencies собирает сервисы поверх репозиториев. producer может быть nil.
func NewDependencies(cfg Config, rt *runtimeDependencies, producer *kafka.Producer, m *metrics.OrderMetrics, logger *log.Entry) *Dependencies {
	stream := eventStream{producer: producer, topic: cfg.KafkaTopic, dlqTopic: cfg.KafkaDLQTopic}
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Orders: ordersvc.NewService(rt.orderRepo, rt.productRepo,
			ordersvc.WithLogger(logger.WithField("layer", "order-service")),
			ordersvc.WithMetrics(m),
		),
		Products: productsvc.NewService(rt.productRepo, logger.WithField("layer", "product-service")),
		Guard:    idempotency.NewGuard(rt.idempotencyRepo, cfg.IdempotencyTTL),
		Cleanup:  newCleanupWorker(cfg, rt.idempotencyRepo, logger),
		Logger:   logger,
	}
	if stream.enabled() {
		deps.Relay = newOutboxRelay(cfg, rt.outboxRepo, stream, logger)
	}
	return deps
}

// newOutboxRelay публикует события заказов в stream.topic, исчерпавшие попытки - в DLQ.
func newOutboxRelay(cfg Config, repo domain.OutboxRepository, stream eventStream, logger *log.Entry) *outbox.Relay {
	publisher := kafka.NewOutboxPublisher(stream.producer, stream.topic, stream.dlqTopic)
	return outbox.NewRelay(repo, publisher,
		outbox.WithLogger(logger.WithField("layer", "outbox-relay")),
		outbox.WithDeadLetters(publisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

func newCleanupWorker(cfg Config, repo domain.IdempotencyRepository, logger *log.Entry) *idempotency.CleanupWorker {
	return idempotency.NewCleanupWorker(repo,
		idempotency.WithCleanupLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithCleanupInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithCleanupBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
}

// OpenServices поднимает хранилище по cfg и собирает сервисы без HTTP и Kafka.
// Нужен утилитам вроде cmd/seed; возвращаемая функция закрывает хранилище.
func OpenServices(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	rt, err := initRuntimeDependencies(ctx, cfg, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return NewDependencies(cfg, rt, nil, nil, logger), rt.closeFn, nil
}
