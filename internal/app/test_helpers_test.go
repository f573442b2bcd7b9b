package app

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

// newTestLogger возвращает logger без вывода для тестов пакета.
func newTestLogger(name string) *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("test", name)
}

// newOrderForTest создаёт пустой заказ в статусе PENDING.
func newOrderForTest(t *testing.T, number string) domain.Order {
	t.Helper()
	order, err := domain.NewOrder(number)
	if err != nil {
		t.Fatalf("NewOrder(%q) failed: %v", number, err)
	}
	return order
}
