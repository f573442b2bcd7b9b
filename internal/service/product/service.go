package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

// CreateInput описывает новый товар каталога.
type CreateInput struct {
	Name      string
	UnitPrice decimal.Decimal
}

// Service реализует CRUD каталога товаров.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога. logger может быть nil.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "product-service")
	}
	return &Service{products: products, logger: logger}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, found, err := s.products.GetByID(ctx, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	if !found {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, domain.ErrProductNotFound)
	}
	return p, nil
}

// CreateProduct проверяет имя и цену; цена округляется до двух знаков.
func (s *Service) CreateProduct(ctx context.Context, in CreateInput) (domain.Product, error) {
	p := domain.Product{
		Name:      strings.TrimSpace(in.Name),
		UnitPrice: domain.NormalizePrice(in.UnitPrice),
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, err
	}

	created, err := s.products.Create(ctx, p)
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"product_id": created.ID,
		"name":       created.Name,
	}).Info("product created")
	return created, nil
}

// UpdateProduct применяет частичное обновление; незаданные поля не меняются.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	if patch.Empty() {
		return domain.Product{}, domain.ErrNothingToUpdate
	}

	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := patch.Apply(current).Validate(); err != nil {
		return domain.Product{}, err
	}

	updated, found, err := s.products.Update(ctx, id, patch)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	if !found {
		return domain.Product{}, fmt.Errorf("update product %s: %w", id, domain.ErrProductNotFound)
	}
	s.logger.WithField("product_id", id).Info("product updated")
	return updated, nil
}

// DeleteProduct удаляет товар. Позиции заказов, ссылающиеся на него, остаются.
func (s *Service) DeleteProduct(ctx context.Context, id string) (bool, error) {
	deleted, err := s.products.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete product %s: %w", id, err)
	}
	if deleted {
		s.logger.WithField("product_id", id).Info("product deleted")
	}
	return deleted, nil
}
