package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-api/internal/version"
)

// eventStream - подключение к Kafka для публикации событий заказов.
// producer == nil означает, что события остаются в outbox.
type eventStream struct {
	producer *kafka.Producer
	topic    string
	dlqTopic string
}

func (s eventStream) enabled() bool { return s.producer != nil }

// openEventStream подключает producer по cfg. Пустой список брокеров - не ошибка:
// возвращается выключенный eventStream.
func openEventStream(cfg Config, logger *log.Entry) (eventStream, error) {
	stream := eventStream{topic: cfg.KafkaTopic, dlqTopic: cfg.KafkaDLQTopic}

	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info("kafka brokers are not configured, order events are disabled")
		return stream, nil
	}

	clientID := cfg.KafkaClientID
	if clientID == "" {
		clientID = version.UserAgent("orders-api")
	}

	producer, err := kafka.NewProducer(brokers, clientID)
	if err != nil {
		logger.WithError(err).WithField("brokers", brokers).Warn("failed to connect kafka producer")
		return stream, err
	}
	stream.producer = producer

	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"client_id": clientID,
		"topic":     stream.topic,
		"dlq_topic": stream.dlqTopic,
	}).Info("kafka producer initialized")
	return stream, nil
}

func (s eventStream) close(logger *log.Entry) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
