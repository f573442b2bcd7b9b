package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

func TestNewEnvelope(t *testing.T) {
	msg := domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"order-1"}`),
	}

	envelope := NewEnvelope(msg)
	if envelope.Key() != "order-1" {
		t.Errorf("expected aggregate id as key, got %s", envelope.Key())
	}
	if time.Since(envelope.PublishedAt) > time.Second {
		t.Error("published_at should be close to now")
	}

	envelope.AggregateID = ""
	if envelope.Key() != "outbox-1" {
		t.Errorf("expected message id as fallback key, got %s", envelope.Key())
	}
}

func TestParseDeadLetter(t *testing.T) {
	raw, err := json.Marshal(DeadLetter{
		OriginalTopic: TopicOrderEvents,
		Envelope: Envelope{
			ID:          "outbox-1",
			AggregateID: "order-1",
			EventType:   domain.EventOrderDeleted,
			Payload:     json.RawMessage(`{"order_id":"order-1"}`),
		},
		Error:    "timeout",
		Attempts: 3,
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	dl, err := ParseDeadLetter(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if dl.Envelope.EventType != domain.EventOrderDeleted || dl.Attempts != 3 {
		t.Errorf("unexpected dead letter %+v", dl)
	}

	if _, err := ParseDeadLetter([]byte(`{"original_topic":"x"}`)); err == nil {
		t.Error("expected error for dead letter without envelope")
	}
	if _, err := ParseDeadLetter([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed dead letter")
	}
}

func TestRetryCount(t *testing.T) {
	headers := []*sarama.RecordHeader{
		{Key: []byte(HeaderEventType), Value: []byte("order.created")},
		{Key: []byte(HeaderRetryCount), Value: []byte("2")},
	}
	if got := RetryCount(headers); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := RetryCount(nil); got != 0 {
		t.Errorf("expected 0 without header, got %d", got)
	}
	bad := []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("x")}}
	if got := RetryCount(bad); got != 0 {
		t.Errorf("expected 0 for malformed header, got %d", got)
	}
}
