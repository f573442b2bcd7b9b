package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

// orderRepositoryInMemory - in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Order
	outbox *outboxRepositoryInMemory
}

// OrderOption настраивает in-memory репозиторий заказов.
type OrderOption func(*orderRepositoryInMemory)

// WithOutbox включает запись событий заказа в outbox под той же блокировкой.
func WithOutbox(outbox *outboxRepositoryInMemory) OrderOption {
	return func(r *orderRepositoryInMemory) {
		r.outbox = outbox
	}
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(opts ...OrderOption) domain.OrderRepository {
	r := &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *orderRepositoryInMemory) FetchByID(ctx context.Context, id string) (domain.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, false, nil
	}
	return order.Clone(), true, nil
}

func (r *orderRepositoryInMemory) FetchAll(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Create сохраняет копию заказа, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.Order{}, domain.ErrOrderConflict
	}

	stored := normalizeOrder(order.ID, order)
	if err := r.enqueueLocked(domain.EventOrderCreated, stored); err != nil {
		return domain.Order{}, err
	}
	r.items[order.ID] = stored
	return stored.Clone(), nil
}

// Update перезаписывает изменяемые поля и полностью заменяет позиции.
func (r *orderRepositoryInMemory) Update(ctx context.Context, id string, order domain.Order) (domain.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Order{}, false, nil
	}

	next := normalizeOrder(id, order)
	next.Date = current.Date
	next.CreatedAt = current.CreatedAt
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	if err := r.enqueueLocked(domain.EventOrderUpdated, next); err != nil {
		return domain.Order{}, false, err
	}
	r.items[id] = next
	return next.Clone(), true, nil
}

func (r *orderRepositoryInMemory) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return false, nil
	}
	if err := r.enqueueLocked(domain.EventOrderDeleted, domain.Order{ID: current.ID}); err != nil {
		return false, err
	}
	delete(r.items, id)
	return true, nil
}

func (r *orderRepositoryInMemory) enqueueLocked(eventType string, order domain.Order) error {
	if r.outbox == nil {
		return nil
	}
	msg, err := domain.NewOrderEvent(eventType, order)
	if err != nil {
		return domain.PersistenceError("build outbox event", err)
	}
	r.outbox.put(msg)
	return nil
}

// normalizeOrder делает копию и проставляет позициям id заказа.
func normalizeOrder(id string, order domain.Order) domain.Order {
	stored := order.Clone()
	stored.ID = id
	for i := range stored.Items {
		stored.Items[i].OrderID = id
	}
	return stored
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
