package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/metrics"
)

// ItemInput - товар и количество в запросе на создание или замену позиций.
type ItemInput struct {
	ProductID string
	Quantity  int32
}

// CreateInput описывает новый заказ.
type CreateInput struct {
	OrderNumber string
	Items       []ItemInput
}

// UpdateInput описывает изменение данных заказа.
// nil OrderNumber оставляет номер; nil Items оставляет позиции, пустой срез их очищает.
type UpdateInput struct {
	OrderNumber *string
	Items       []ItemInput
}

// Service согласует агрегат заказа с каталогом товаров и хранилищем.
type Service struct {
	orders   domain.OrderRepository
	products domain.ProductLookup
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
}

// Option настраивает Service.
type Option func(*Service)

func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService создаёт сервис заказов.
func NewService(orders domain.OrderRepository, products domain.ProductLookup, opts ...Option) *Service {
	s := &Service{
		orders:   orders,
		products: products,
		logger:   log.New().WithField("component", "order-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListOrders возвращает краткие представления всех заказов.
func (s *Service) ListOrders(ctx context.Context) (_ []Summary, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("list_orders", started, err) }(time.Now())

	all, err := s.orders.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	result := make([]Summary, 0, len(all))
	for _, o := range all {
		result = append(result, summarize(o))
	}
	return result, nil
}

// GetOrder возвращает заказ с позициями и именами товаров.
func (s *Service) GetOrder(ctx context.Context, id string) (_ Detail, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("get_order", started, err) }(time.Now())

	o, found, err := s.orders.FetchByID(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("get order %s: %w", id, err)
	}
	if !found {
		return Detail{}, fmt.Errorf("get order %s: %w", id, domain.ErrOrderNotFound)
	}
	return s.detail(ctx, o)
}

// CreateOrder собирает заказ из товаров каталога и сохраняет его одной транзакцией.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (_ Detail, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("create_order", started, err) }(time.Now())

	o, err := domain.NewOrder(in.OrderNumber)
	if err != nil {
		return Detail{}, err
	}
	if err := s.addItems(ctx, &o, in.Items); err != nil {
		return Detail{}, err
	}

	created, err := s.orders.Create(ctx, o)
	if err != nil {
		return Detail{}, fmt.Errorf("create order: %w", err)
	}
	s.metrics.RecordOrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id":     created.ID,
		"order_number": created.OrderNumber,
		"items":        created.ItemCount(),
	}).Info("order created")

	return s.GetOrder(ctx, created.ID)
}

// UpdateOrder меняет номер и/или полностью заменяет позиции заказа.
// Позиции с теми же товарами сохраняют идентификатор и дату создания,
// цена снимается заново по текущему каталогу.
func (s *Service) UpdateOrder(ctx context.Context, id string, in UpdateInput) (_ Detail, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("update_order", started, err) }(time.Now())

	if in.OrderNumber == nil && in.Items == nil {
		return Detail{}, domain.ErrNothingToUpdate
	}

	o, err := s.load(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if o.Completed() {
		s.metrics.RecordRejectedMutation("update_order")
		return Detail{}, fmt.Errorf("update order %s: %w", id, domain.ErrOrderCompleted)
	}

	if in.OrderNumber != nil {
		if err := o.Rename(*in.OrderNumber); err != nil {
			return Detail{}, err
		}
	}
	if in.Items != nil {
		previous := make(map[string]domain.OrderItem, len(o.Items))
		for _, item := range o.Items {
			previous[item.ProductID] = item
		}
		if err := o.ClearItems(); err != nil {
			return Detail{}, err
		}
		if err := s.addItems(ctx, &o, in.Items); err != nil {
			return Detail{}, err
		}
		for i := range o.Items {
			if prev, ok := previous[o.Items[i].ProductID]; ok {
				o.Items[i].ID = prev.ID
				o.Items[i].CreatedAt = prev.CreatedAt
			}
		}
	}

	if err := s.save(ctx, o); err != nil {
		return Detail{}, err
	}
	s.metrics.RecordOrderUpdated()
	s.logger.WithFields(log.Fields{
		"order_id":     id,
		"order_number": o.OrderNumber,
		"items":        o.ItemCount(),
	}).Info("order updated")

	return s.GetOrder(ctx, id)
}

// UpdateOrderStatus меняет только статус. Из COMPLETED перейти нельзя.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (_ Detail, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("update_order_status", started, err) }(time.Now())

	o, err := s.load(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	previous := o.Status
	if err := o.SetStatus(status); err != nil {
		if errors.Is(err, domain.ErrInvalidOperation) {
			s.metrics.RecordRejectedMutation("update_order_status")
		}
		return Detail{}, fmt.Errorf("update order %s status: %w", id, err)
	}

	if err := s.save(ctx, o); err != nil {
		return Detail{}, err
	}
	s.metrics.RecordStatusChange(string(status))
	s.logger.WithFields(log.Fields{
		"order_id": id,
		"from":     previous,
		"to":       status,
	}).Info("order status changed")

	return s.GetOrder(ctx, id)
}

// DeleteOrder удаляет заказ; false, если заказа нет.
func (s *Service) DeleteOrder(ctx context.Context, id string) (_ bool, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("delete_order", started, err) }(time.Now())

	deleted, err := s.orders.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete order %s: %w", id, err)
	}
	if deleted {
		s.metrics.RecordOrderDeleted()
		s.logger.WithField("order_id", id).Info("order deleted")
	}
	return deleted, nil
}

func (s *Service) load(ctx context.Context, id string) (domain.Order, error) {
	o, found, err := s.orders.FetchByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", id, err)
	}
	if !found {
		return domain.Order{}, fmt.Errorf("load order %s: %w", id, domain.ErrOrderNotFound)
	}
	return o, nil
}

func (s *Service) save(ctx context.Context, o domain.Order) error {
	_, found, err := s.orders.Update(ctx, o.ID, o)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	if !found {
		return fmt.Errorf("save order %s: %w", o.ID, domain.ErrOrderNotFound)
	}
	return nil
}

// addItems добавляет позиции, снимая цену с товара каталога в момент добавления.
func (s *Service) addItems(ctx context.Context, o *domain.Order, items []ItemInput) error {
	for _, in := range items {
		product, found, err := s.products.GetByID(ctx, in.ProductID)
		if err != nil {
			return fmt.Errorf("lookup product %s: %w", in.ProductID, err)
		}
		if !found {
			return fmt.Errorf("product %s: %w", in.ProductID, domain.ErrReferenceNotFound)
		}
		if err := o.AddItem(product, in.Quantity); err != nil {
			return fmt.Errorf("add product %s: %w", in.ProductID, err)
		}
	}
	return nil
}

func (s *Service) detail(ctx context.Context, o domain.Order) (Detail, error) {
	items := make([]ItemDetail, 0, len(o.Items))
	for _, item := range o.Items {
		name := MissingProductName
		product, found, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			return Detail{}, fmt.Errorf("lookup product %s: %w", item.ProductID, err)
		}
		if found {
			name = product.Name
		}
		items = append(items, ItemDetail{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductName:  name,
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder,
			TotalPrice:   item.TotalPrice(),
			CreatedAt:    item.CreatedAt,
		})
	}

	return Detail{
		Summary:   summarize(o),
		Items:     items,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}, nil
}
