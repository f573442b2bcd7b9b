package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeOrder - тип агрегата в outbox-сообщениях заказов.
const AggregateTypeOrder = "order"

// Типы событий заказа.
const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OrderEventTypes - все типы событий заказа в порядке жизненного цикла.
func OrderEventTypes() []string {
	return []string{EventOrderCreated, EventOrderUpdated, EventOrderDeleted}
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time

	// PendingByEventType - backlog по типу события; типы без pending-сообщений отсутствуют.
	PendingByEventType map[string]int
}

// OrderSnapshot - содержимое события заказа.
type OrderSnapshot struct {
	OrderID     string              `json:"order_id"`
	OrderNumber string              `json:"order_number,omitempty"`
	Status      string              `json:"status,omitempty"`
	ItemCount   int                 `json:"item_count"`
	FinalPrice  decimal.Decimal     `json:"final_price"`
	Items       []OrderItemSnapshot `json:"items,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// OrderItemSnapshot - позиция внутри OrderSnapshot.
type OrderItemSnapshot struct {
	ProductID    string          `json:"product_id"`
	Quantity     int32           `json:"quantity"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
}

// NewOrderEvent собирает outbox-сообщение со снимком заказа.
func NewOrderEvent(eventType string, order Order) (OutboxMessage, error) {
	snapshot := OrderSnapshot{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		ItemCount:   order.ItemCount(),
		FinalPrice:  order.TotalPrice(),
		OccurredAt:  time.Now().UTC(),
	}
	for _, item := range order.Items {
		snapshot.Items = append(snapshot.Items, OrderItemSnapshot{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder,
		})
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
