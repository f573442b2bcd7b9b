package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/messaging/kafka"
)

type fakeOffsetClient struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
	err        error
}

func (f *fakeOffsetClient) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if at == sarama.OffsetOldest {
		return f.oldest[partition], nil
	}
	return f.newest[partition], nil
}

func (f *fakeOffsetClient) Partitions(string) ([]int32, error) { return f.partitions, f.err }
func (f *fakeOffsetClient) Close() error                       { return nil }

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return f.errors }
func (f *fakePartitionConsumer) Close() error                             { return nil }

type fakeConsumerSource struct {
	byPartition map[int32][]*sarama.ConsumerMessage
	offsets     map[int32]int64
}

func (f *fakeConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	if f.offsets == nil {
		f.offsets = make(map[int32]int64)
	}
	f.offsets[partition] = offset

	msgs := f.byPartition[partition]
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, m := range msgs {
		if m.Offset >= offset {
			pc.messages <- m
		}
	}
	return pc, nil
}

func (f *fakeConsumerSource) Close() error { return nil }

type recordingPublisher struct {
	topics  []string
	keys    []string
	events  []kafka.Envelope
	headers [][]sarama.RecordHeader
	err     error
}

func (r *recordingPublisher) PublishEvent(topic, key string, event any, headers ...sarama.RecordHeader) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.keys = append(r.keys, key)
	r.events = append(r.events, event.(kafka.Envelope))
	r.headers = append(r.headers, headers)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func deadLetterMessage(t *testing.T, partition int32, offset int64, orderID string) *sarama.ConsumerMessage {
	t.Helper()
	dl := kafka.DeadLetter{
		OriginalTopic: kafka.TopicOrderEvents,
		Envelope: kafka.NewEnvelope(domain.OutboxMessage{
			ID:            "evt-" + orderID,
			AggregateType: "order",
			AggregateID:   orderID,
			EventType:     "order.created",
			Payload:       []byte(`{"id":"` + orderID + `"}`),
		}),
		Error:    "kafka unavailable",
		Attempts: 5,
		FailedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(dl)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{
		Topic:     kafka.TopicDeadLetterQueue,
		Partition: partition,
		Offset:    offset,
		Value:     value,
		Headers: []*sarama.RecordHeader{
			{Key: []byte(kafka.HeaderRetryCount), Value: []byte("5")},
		},
	}
}

func baseConfig() config {
	return config{
		brokers:     []string{"mock:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		limit:       10,
		idleTimeout: 50 * time.Millisecond,
	}
}

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig([]string{"-execute", "-limit=5"}, func(key string) string {
		if key == envKafkaBrokers {
			return "k1:9092, k2:9092"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers)
	assert.True(t, cfg.execute)
	assert.Equal(t, 5, cfg.limit)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Empty(t, cfg.targetTopic)

	noEnv := func(string) string { return "" }
	for _, args := range [][]string{
		nil,
		{"-brokers=k:9092", "-source-topic= "},
		{"-brokers=k:9092", "-limit=0"},
		{"-brokers=k:9092", "-idle-timeout=0s"},
		{"-unknown"},
	} {
		_, err := readConfig(args, noEnv)
		assert.Error(t, err, "args %v", args)
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, parseBrokers(" a:1 ,, b:2 "))
	assert.Empty(t, parseBrokers(""))
}

func TestRunReplay_DryRunDoesNotPublish(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 2},
	}
	consumer := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {deadLetterMessage(t, 0, 0, "o-1"), deadLetterMessage(t, 0, 1, "o-2")},
	}}

	stats, err := runReplay(context.Background(), baseConfig(), client, consumer, nil)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 2}, stats)
}

func TestRunReplay_ExecuteRepublishesEnvelope(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{1, 0},
		oldest:     map[int32]int64{0: 0, 1: 0},
		newest:     map[int32]int64{0: 2, 1: 1},
	}
	consumer := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {
			deadLetterMessage(t, 0, 0, "o-1"),
			{Partition: 0, Offset: 1, Value: []byte(`{"not":"a dead letter"}`)},
		},
		1: {deadLetterMessage(t, 1, 0, "o-2")},
	}}
	publisher := &recordingPublisher{}

	cfg := baseConfig()
	cfg.execute = true
	stats, err := runReplay(context.Background(), cfg, client, consumer, publisher)
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 3, replayed: 2, skipped: 1}, stats)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, []string{kafka.TopicOrderEvents, kafka.TopicOrderEvents}, publisher.topics)
	assert.Equal(t, []string{"o-1", "o-2"}, publisher.keys, "partitions are replayed in ascending order")
	assert.Equal(t, "order.created", publisher.events[0].EventType)
	assert.JSONEq(t, `{"id":"o-1"}`, string(publisher.events[0].Payload))

	var retry string
	for _, h := range publisher.headers[0] {
		if string(h.Key) == kafka.HeaderRetryCount {
			retry = string(h.Value)
		}
	}
	assert.Equal(t, "6", retry)
}

func TestRunReplay_TargetTopicOverrideAndLimit(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 3},
	}
	consumer := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {deadLetterMessage(t, 0, 0, "o-1"), deadLetterMessage(t, 0, 1, "o-2"), deadLetterMessage(t, 0, 2, "o-3")},
	}}
	publisher := &recordingPublisher{}

	cfg := baseConfig()
	cfg.execute = true
	cfg.limit = 2
	cfg.fromNewest = true
	cfg.targetTopic = "orders.replayed"

	stats, err := runReplay(context.Background(), cfg, client, consumer, publisher)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.replayed)
	assert.Equal(t, int64(1), consumer.offsets[0], "from-newest starts limit messages before the end")
	assert.Equal(t, []string{"orders.replayed", "orders.replayed"}, publisher.topics)
	assert.Equal(t, []string{"o-2", "o-3"}, publisher.keys)
}

func TestRunReplay_PublishErrorStops(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 1},
	}
	consumer := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {deadLetterMessage(t, 0, 0, "o-1")},
	}}

	cfg := baseConfig()
	cfg.execute = true
	_, err := runReplay(context.Background(), cfg, client, consumer, &recordingPublisher{err: errors.New("broker down")})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "broker down"))
}

func TestRunReplay_Preconditions(t *testing.T) {
	_, err := runReplay(context.Background(), baseConfig(), nil, nil, nil)
	assert.Error(t, err)

	cfg := baseConfig()
	cfg.execute = true
	_, err = runReplay(context.Background(), cfg, &fakeOffsetClient{}, &fakeConsumerSource{}, nil)
	assert.Error(t, err)

	_, err = runReplay(context.Background(), baseConfig(), &fakeOffsetClient{err: errors.New("no metadata")}, &fakeConsumerSource{}, nil)
	assert.ErrorContains(t, err, "no metadata")

	stats, err := runReplay(context.Background(), baseConfig(), &fakeOffsetClient{}, &fakeConsumerSource{}, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
}

func TestRunReplay_WithKafkaProducer(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, kafka.NewSaramaConfig("dlq-replay-test"))
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})
	producer := kafka.NewProducerFromSync(mockProducer, nil)
	defer func() { _ = producer.Close() }()

	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 1},
	}
	consumer := &fakeConsumerSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {deadLetterMessage(t, 0, 0, "o-1")},
	}}

	cfg := baseConfig()
	cfg.execute = true
	stats, err := runReplay(context.Background(), cfg, client, consumer, producer)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
}

func TestProcessPartition_IdleTimeout(t *testing.T) {
	client := &fakeOffsetClient{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 5},
	}
	stats, err := processPartition(context.Background(), &fakeConsumerSource{}, client, nil, baseConfig(), 0, 5)
	require.NoError(t, err)
	assert.Zero(t, stats.processed)
}
