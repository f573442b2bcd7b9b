package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending - заказ создан и ещё не взят в работу.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusInProgress - заказ в работе.
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	// OrderStatusCompleted - терминальный статус, заказ больше не меняется.
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

// Known сообщает, что статус входит в стандартный набор.
func (s OrderStatus) Known() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted:
		return true
	default:
		return false
	}
}

// KnownOrderStatuses возвращает стандартные статусы в порядке жизненного цикла.
func KnownOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID      string
	OrderID string
	// ProductID - ссылка на товар каталога; товар может быть удалён позже.
	ProductID string
	Quantity  int32
	// PriceAtOrder фиксируется при добавлении товара и дальше не меняется.
	PriceAtOrder decimal.Decimal
	CreatedAt    time.Time
}

// TotalPrice возвращает quantity * priceAtOrder.
func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt32(i.Quantity))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	OrderNumber string
	Date        time.Time
	Status      OrderStatus
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOrder создаёт пустой заказ в статусе PENDING.
func NewOrder(orderNumber string) (Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return Order{}, ErrOrderNumberRequired
	}

	now := time.Now().UTC()
	return Order{
		ID:          uuid.NewString(),
		OrderNumber: orderNumber,
		Date:        now,
		Status:      OrderStatusPending,
		Items:       make([]OrderItem, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Completed сообщает, что заказ в терминальном статусе.
func (o *Order) Completed() bool {
	return o.Status == OrderStatusCompleted
}

// AddItem добавляет товар в заказ. Повторное добавление того же товара
// увеличивает количество, цена первой позиции сохраняется.
func (o *Order) AddItem(product Product, quantity int32) error {
	if o.Completed() {
		return ErrOrderCompleted
	}
	if quantity <= 0 {
		return ErrItemQtyInvalid
	}

	for i := range o.Items {
		if o.Items[i].ProductID == product.ID {
			if quantity > math.MaxInt32-o.Items[i].Quantity {
				return ErrItemQtyOverflow
			}
			o.Items[i].Quantity += quantity
			o.touch()
			return nil
		}
	}

	o.Items = append(o.Items, OrderItem{
		ID:           uuid.NewString(),
		OrderID:      o.ID,
		ProductID:    product.ID,
		Quantity:     quantity,
		PriceAtOrder: product.UnitPrice,
		CreatedAt:    time.Now().UTC(),
	})
	o.touch()
	return nil
}

// RemoveItem удаляет позицию с товаром; отсутствие товара не ошибка.
func (o *Order) RemoveItem(productID string) error {
	if o.Completed() {
		return ErrOrderCompleted
	}

	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.touch()
			return nil
		}
	}
	return nil
}

// ClearItems удаляет все позиции перед полной заменой списка.
func (o *Order) ClearItems() error {
	if o.Completed() {
		return ErrOrderCompleted
	}
	o.Items = make([]OrderItem, 0)
	o.touch()
	return nil
}

// Rename меняет номер заказа.
func (o *Order) Rename(orderNumber string) error {
	if o.Completed() {
		return ErrOrderCompleted
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return ErrOrderNumberRequired
	}
	o.OrderNumber = orderNumber
	o.touch()
	return nil
}

// SetStatus меняет статус. Из COMPLETED выйти нельзя.
func (o *Order) SetStatus(status OrderStatus) error {
	if strings.TrimSpace(string(status)) == "" {
		return ErrStatusRequired
	}
	if o.Completed() && status != OrderStatusCompleted {
		return ErrOrderCompleted
	}
	o.Status = status
	o.touch()
	return nil
}

// ItemCount - количество различных товаров в заказе.
func (o *Order) ItemCount() int {
	return len(o.Items)
}

// TotalPrice - сумма quantity * priceAtOrder по всем позициям.
func (o *Order) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// ValidateInvariants проверяет инварианты агрегата и возвращает список нарушений.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.OrderNumber) == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if strings.TrimSpace(string(o.Status)) == "" {
		errs = append(errs, ErrStatusRequired)
	}

	seen := make(map[string]struct{}, len(o.Items))
	for _, item := range o.Items {
		if _, dup := seen[item.ProductID]; dup {
			errs = append(errs, ErrDuplicateProduct)
		}
		seen[item.ProductID] = struct{}{}

		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceAtOrder.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.OrderID != "" && item.OrderID != o.ID {
			errs = append(errs, ErrForeignItem)
		}
	}

	return errs
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	clone := o
	clone.Items = make([]OrderItem, len(o.Items))
	copy(clone.Items, o.Items)
	return clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
