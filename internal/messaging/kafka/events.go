package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "orders.order.events"
	TopicDeadLetterQueue = "orders.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope - сообщение outbox в том виде, в каком оно уходит в топик событий заказа.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   time.Now().UTC(),
	}
}

// Key - ключ партиционирования: все события одного заказа попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DeadLetter - запись DLQ о сообщении, которое не удалось опубликовать.
type DeadLetter struct {
	OriginalTopic string    `json:"original_topic"`
	Envelope      Envelope  `json:"envelope"`
	Error         string    `json:"error"`
	Attempts      int       `json:"attempts"`
	FailedAt      time.Time `json:"failed_at"`
}

// ParseDeadLetter разбирает запись DLQ.
func ParseDeadLetter(value []byte) (DeadLetter, error) {
	var dl DeadLetter
	if err := json.Unmarshal(value, &dl); err != nil {
		return DeadLetter{}, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	if dl.Envelope.ID == "" || len(dl.Envelope.Payload) == 0 {
		return DeadLetter{}, fmt.Errorf("dead letter has no original envelope")
	}
	return dl, nil
}

// RetryCount читает счётчик повторов из заголовков сообщения.
func RetryCount(headers []*sarama.RecordHeader) int {
	for _, header := range headers {
		if header == nil || string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

func header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}
