package kafka

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

// OutboxTopicPublisher публикует события заказа и записи DLQ.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	dlqTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// Пустые топики заменяются значениями по умолчанию.
func NewOutboxPublisher(producer *Producer, topic, dlqTopic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	if dlqTopic == "" {
		dlqTopic = TopicDeadLetterQueue
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		dlqTopic: dlqTopic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := NewEnvelope(event)
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope,
		header(HeaderEventType, event.EventType),
		header(HeaderAggregateType, event.AggregateType),
	)
}

// PublishDeadLetter отправляет в DLQ сообщение, исчерпавшее попытки публикации.
func (p *OutboxTopicPublisher) PublishDeadLetter(event domain.OutboxMessage, cause error, attempts int) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	failedAt := time.Now().UTC()
	dl := DeadLetter{
		OriginalTopic: p.topic,
		Envelope:      NewEnvelope(event),
		Attempts:      attempts,
		FailedAt:      failedAt,
	}
	if cause != nil {
		dl.Error = cause.Error()
	}

	return p.producer.PublishEvent(p.dlqTopic, dl.Envelope.Key(), dl,
		header(HeaderEventType, event.EventType),
		header(HeaderOriginalTopic, p.topic),
		header(HeaderErrorMessage, dl.Error),
		header(HeaderRetryCount, strconv.Itoa(attempts)),
		header(HeaderFailedAt, failedAt.Format(time.RFC3339)),
	)
}

// Topic возвращает топик событий заказа.
func (p *OutboxTopicPublisher) Topic() string { return p.topic }

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
