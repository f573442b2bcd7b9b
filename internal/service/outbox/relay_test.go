package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/storage/memory"
)

func orderEvent(t *testing.T, eventType string) domain.OutboxMessage {
	t.Helper()

	o, err := domain.NewOrder("ORD-1")
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	msg, err := domain.NewOrderEvent(eventType, o)
	if err != nil {
		t.Fatalf("new order event: %v", err)
	}
	return msg
}

func TestRelay_ProcessOnce_MarkSent(t *testing.T) {
	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	stored, err := repo.Enqueue(ctx, orderEvent(t, domain.EventOrderCreated))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	publisher := &stubPublisher{}

	relay := NewRelay(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	result := relay.ProcessOnce(ctx)

	if result.Sent != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
	if publisher.published[0].ID != stored.ID {
		t.Fatalf("published unexpected message %s", publisher.published[0].ID)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
	if got := testutil.ToFloat64(pendingMessages); got != 0 {
		t.Fatalf("expected pending gauge 0, got %v", got)
	}
}

func TestRelay_ProcessOnce_DeadLetterAfterRetries(t *testing.T) {
	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	if _, err := repo.Enqueue(ctx, orderEvent(t, domain.EventOrderUpdated)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubDeadLetters{}

	relay := NewRelay(repo, publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithDeadLetters(dlq),
	)
	result := relay.ProcessOnce(ctx)

	if result.Failed != 1 || result.Sent != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if len(dlq.messages) != 1 || dlq.attempts != 3 {
		t.Fatalf("expected one dead letter after 3 attempts, got %d/%d", len(dlq.messages), dlq.attempts)
	}
	if !errors.Is(dlq.cause, publisher.err) {
		t.Fatalf("dead letter cause should wrap publish error, got %v", dlq.cause)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("failed message must leave the backlog, got %d", len(pending))
	}
}

func TestRelay_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	if _, err := repo.Enqueue(ctx, orderEvent(t, domain.EventOrderDeleted)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}
	dlq := &stubDeadLetters{}

	relay := NewRelay(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3), WithDeadLetters(dlq))
	result := relay.ProcessOnce(ctx)

	if result.Sent != 1 {
		t.Fatalf("expected 1 sent, got %+v", result)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if len(dlq.messages) != 0 {
		t.Fatal("no dead letter expected")
	}
}

func TestRelay_ProcessOnce_RespectsBatchSize(t *testing.T) {
	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := repo.Enqueue(ctx, orderEvent(t, domain.EventOrderCreated)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	publisher := &stubPublisher{}

	relay := NewRelay(repo, publisher, WithBatchSize(2), WithRetryBaseDelay(0))
	if result := relay.ProcessOnce(ctx); result.Sent != 2 {
		t.Fatalf("expected 2 sent in first batch, got %+v", result)
	}
	if pending := repo.AllPending(); len(pending) != 3 {
		t.Fatalf("expected 3 pending after first batch, got %d", len(pending))
	}
}

func TestRelay_ProcessOnce_BacklogByEventType(t *testing.T) {
	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	for _, eventType := range []string{domain.EventOrderCreated, domain.EventOrderUpdated, domain.EventOrderUpdated} {
		if _, err := repo.Enqueue(ctx, orderEvent(t, eventType)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	relay := NewRelay(repo, &stubPublisher{}, WithBatchSize(1), WithRetryBaseDelay(0))
	if result := relay.ProcessOnce(ctx); result.Sent != 1 {
		t.Fatalf("expected 1 sent, got %+v", result)
	}

	want := map[string]float64{
		domain.EventOrderCreated: 0,
		domain.EventOrderUpdated: 2,
		domain.EventOrderDeleted: 0,
	}
	for eventType, expected := range want {
		if got := testutil.ToFloat64(pendingByEventType.WithLabelValues(eventType)); got != expected {
			t.Fatalf("pending %s: expected %v, got %v", eventType, expected, got)
		}
	}
}

func TestRelay_Backoff(t *testing.T) {
	relay := NewRelay(nil, nil, WithRetryBaseDelay(10*time.Millisecond))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{30, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := relay.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if got := NewRelay(nil, nil, WithRetryBaseDelay(0)).backoff(3); got != 0 {
		t.Errorf("zero base delay must disable backoff, got %v", got)
	}
}

func TestRelay_Run_StopsOnContextCancel(t *testing.T) {
	relay := NewRelay(memory.NewOutboxRepository(), &stubPublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancel")
	}
}

func TestRelay_Run_DisabledWithoutPublisher(t *testing.T) {
	relay := NewRelay(memory.NewOutboxRepository(), nil)
	if err := relay.Run(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
	callCount      int
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		if err == nil {
			s.published = append(s.published, msg)
		}
		return err
	}
	if s.err == nil {
		s.published = append(s.published, msg)
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

type stubDeadLetters struct {
	messages []domain.OutboxMessage
	cause    error
	attempts int
}

func (s *stubDeadLetters) PublishDeadLetter(msg domain.OutboxMessage, cause error, attempts int) error {
	s.messages = append(s.messages, msg)
	s.cause = cause
	s.attempts = attempts
	return nil
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
var _ DeadLetterPublisher = (*stubDeadLetters)(nil)
