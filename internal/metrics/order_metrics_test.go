package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewOrderMetrics(t *testing.T) {
	m := NewOrderMetrics()
	if m == nil {
		t.Fatal("NewOrderMetrics should not return nil")
	}

	if m.ordersCreated == nil {
		t.Error("ordersCreated counter should not be nil")
	}
	if m.statusChanges == nil {
		t.Error("statusChanges counter vec should not be nil")
	}
	if m.operationDuration == nil {
		t.Error("operationDuration histogram vec should not be nil")
	}
	if m.productCache == nil {
		t.Error("productCache counter vec should not be nil")
	}
}

func TestNewOrderMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	if got := testutil.ToFloat64(first.ordersCreated); got != 2 {
		t.Errorf("expected shared counter value 2, got %v", got)
	}
}

func TestOrderCounters(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOrderCreated()
	m.RecordOrderUpdated()
	m.RecordOrderUpdated()
	m.RecordOrderDeleted()

	if got := testutil.ToFloat64(m.ordersCreated); got != 1 {
		t.Errorf("expected created 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.ordersUpdated); got != 2 {
		t.Errorf("expected updated 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.ordersDeleted); got != 1 {
		t.Errorf("expected deleted 1, got %v", got)
	}
}

func TestStatusAndRejections(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordStatusChange("COMPLETED")
	m.RecordStatusChange("COMPLETED")
	m.RecordStatusChange("IN_PROGRESS")
	m.RecordRejectedMutation("update_status")

	if got := testutil.ToFloat64(m.statusChanges.WithLabelValues("COMPLETED")); got != 2 {
		t.Errorf("expected 2 COMPLETED transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejectedMutations.WithLabelValues("update_status")); got != 1 {
		t.Errorf("expected 1 rejection, got %v", got)
	}
}

func TestObserveOperation(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.ObserveOperation("create_order", time.Now().Add(-50*time.Millisecond), nil)
	m.ObserveOperation("create_order", time.Now(), errors.New("boom"))

	metric := &dto.Metric{}
	observer := m.operationDuration.WithLabelValues("create_order", "ok")
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 ok sample, got %d", metric.Histogram.GetSampleCount())
	}
	if metric.Histogram.GetSampleSum() < 0.05 {
		t.Errorf("expected sum >= 0.05, got %f", metric.Histogram.GetSampleSum())
	}
}

func TestRecordCacheResult(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCacheResult(CacheHit)
	m.RecordCacheResult(CacheMiss)
	m.RecordCacheResult(CacheMiss)

	if got := testutil.ToFloat64(m.productCache.WithLabelValues(CacheMiss)); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *OrderMetrics

	m.RecordOrderCreated()
	m.RecordOrderUpdated()
	m.RecordOrderDeleted()
	m.RecordStatusChange("PENDING")
	m.RecordRejectedMutation("update_order")
	m.ObserveOperation("get_order", time.Now(), nil)
	m.RecordCacheResult(CacheHit)
}
