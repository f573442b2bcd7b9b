package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository создаёт in-memory каталог товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.Product)}
}

func (r *productRepositoryInMemory) GetByID(ctx context.Context, id string) (domain.Product, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	return product, ok, nil
}

func (r *productRepositoryInMemory) GetAll(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *productRepositoryInMemory) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := r.items[product.ID]; exists {
		return domain.Product{}, domain.ErrProductConflict
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.UnitPrice = domain.NormalizePrice(product.UnitPrice)

	r.items[product.ID] = product
	return product, nil
}

func (r *productRepositoryInMemory) Update(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Product{}, false, nil
	}

	next := patch.Apply(current)
	next.UpdatedAt = time.Now().UTC()
	r.items[id] = next
	return next, true, nil
}

func (r *productRepositoryInMemory) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
