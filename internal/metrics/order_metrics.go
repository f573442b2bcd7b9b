package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты обращения к кэшу каталога. CacheStale - товар изменился во время
// чтения и запись в кэш пропущена; CacheBypass - чтение мимо кэша после
// неудачной инвалидации.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheError  = "error"
	CacheStale  = "stale"
	CacheBypass = "bypass"
)

// OrderMetrics содержит метрики сервиса заказов и каталога.
// Все методы безопасны для nil-получателя.
type OrderMetrics struct {
	ordersCreated prometheus.Counter
	ordersUpdated prometheus.Counter
	ordersDeleted prometheus.Counter

	statusChanges     *prometheus.CounterVec
	rejectedMutations *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec

	productCache *prometheus.CounterVec
}

// NewOrderMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в заданном реестре (для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersUpdated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_updated_total",
			Help: "Total number of order data updates",
		}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_deleted_total",
			Help: "Total number of orders deleted",
		}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_status_changes_total",
			Help: "Total number of order status changes by target status",
		}, []string{"status"}),
		rejectedMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orders_rejected_mutations_total",
			Help: "Total number of order mutations rejected by business rules",
		}, []string{"operation"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_operation_duration_seconds",
			Help:    "Duration of order service operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation", "outcome"}),
		productCache: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "products_cache_requests_total",
			Help: "Product cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *OrderMetrics) RecordOrderUpdated() {
	if m == nil {
		return
	}
	m.ordersUpdated.Inc()
}

func (m *OrderMetrics) RecordOrderDeleted() {
	if m == nil {
		return
	}
	m.ordersDeleted.Inc()
}

// RecordStatusChange считает переходы в статус status.
func (m *OrderMetrics) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordRejectedMutation считает изменения, отклонённые бизнес-правилами (завершённый заказ).
func (m *OrderMetrics) RecordRejectedMutation(operation string) {
	if m == nil {
		return
	}
	m.rejectedMutations.WithLabelValues(operation).Inc()
}

// ObserveOperation записывает длительность операции сервиса с исходом ok/error.
func (m *OrderMetrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operationDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

// RecordCacheResult считает обращения к кэшу каталога по результату.
func (m *OrderMetrics) RecordCacheResult(result string) {
	if m == nil {
		return
	}
	m.productCache.WithLabelValues(result).Inc()
}
