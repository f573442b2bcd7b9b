// Package outbox доставляет события заказов из таблицы outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	pendingMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orders_outbox_pending_messages",
		Help: "Current number of pending messages in the transactional outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orders_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox message.",
	})
	pendingByEventType = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orders_outbox_pending_messages_by_event",
		Help: "Current number of pending outbox messages grouped by order event type.",
	}, []string{"event_type"})
)

// DeadLetterPublisher принимает сообщения, исчерпавшие попытки публикации.
type DeadLetterPublisher interface {
	PublishDeadLetter(msg domain.OutboxMessage, cause error, attempts int) error
}

// Option настраивает Relay.
type Option func(*Relay)

func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDeadLetters включает отправку в DLQ после исчерпания попыток.
func WithDeadLetters(dlq DeadLetterPublisher) Option {
	return func(r *Relay) {
		r.dlq = dlq
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

func WithBatchSize(batchSize int) Option {
	return func(r *Relay) {
		if batchSize > 0 {
			r.batchSize = batchSize
		}
	}
}

func WithMaxAttempts(maxAttempts int) Option {
	return func(r *Relay) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
	}
}

// WithRetryBaseDelay задаёт базовую задержку экспоненциального backoff; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(r *Relay) {
		if delay >= 0 {
			r.retryBaseDelay = delay
		}
	}
}

// Relay периодически вычитывает pending-сообщения и публикует их.
type Relay struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlq            DeadLetterPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Result - итог одного цикла.
type Result struct {
	Sent   int
	Failed int
}

// NewRelay создаёт relay для outbox.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Relay {
	r := &Relay{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-relay"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run публикует outbox до отмены ctx. Возвращает nil при штатной остановке.
func (r *Relay) Run(ctx context.Context) error {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("outbox relay is disabled: repo or publisher is nil")
		return nil
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл: pull, publish с повторами, mark sent/failed.
func (r *Relay) ProcessOnce(ctx context.Context) Result {
	var result Result
	if ctx.Err() != nil {
		return result
	}

	r.refreshBacklog(ctx)
	defer r.refreshBacklog(ctx)

	batch, err := r.repo.PullPending(ctx, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			return result
		}
		fields := log.Fields{
			"outbox_id":    msg.ID,
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateID,
		}

		if err := r.publishWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return result
			}
			r.logger.WithError(err).WithFields(fields).Error("outbox publish failed after retries")
			publishAttempts.WithLabelValues("failed").Inc()
			r.deadLetter(msg, err)

			if markErr := r.repo.MarkFailed(ctx, msg.ID); markErr != nil {
				r.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox message as failed")
			}
			result.Failed++
			continue
		}

		if err := r.repo.MarkSent(ctx, msg.ID); err != nil {
			r.logger.WithError(err).WithFields(fields).Warn("failed to mark outbox message as sent")
			continue
		}
		result.Sent++
	}
	return result
}

func (r *Relay) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.publisher.Publish(msg)
		if err == nil {
			publishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		publishAttempts.WithLabelValues("retry_error").Inc()

		if attempt == r.maxAttempts {
			break
		}
		if delay := r.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// backoff удваивает базовую задержку на каждой попытке, не превышая maxRetryDelay.
func (r *Relay) backoff(attempt int) time.Duration {
	if r.retryBaseDelay <= 0 {
		return 0
	}
	delay := r.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func (r *Relay) deadLetter(msg domain.OutboxMessage, cause error) {
	if r.dlq == nil {
		return
	}
	if err := r.dlq.PublishDeadLetter(msg, cause, r.maxAttempts); err != nil {
		r.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to publish to DLQ")
		publishAttempts.WithLabelValues("dlq_failed").Inc()
		return
	}
	publishAttempts.WithLabelValues("dlq").Inc()
}

func (r *Relay) refreshBacklog(ctx context.Context) {
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Debug("failed to collect outbox backlog stats")
		return
	}

	pendingMessages.Set(float64(stats.PendingCount))
	for _, eventType := range domain.OrderEventTypes() {
		pendingByEventType.WithLabelValues(eventType).Set(float64(stats.PendingByEventType[eventType]))
	}
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}
