package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

// MissingProductName подставляется вместо имени удалённого из каталога товара.
const MissingProductName = "product not found"

// Summary - краткое представление заказа для списка.
type Summary struct {
	ID          string
	OrderNumber string
	Date        time.Time
	Status      domain.OrderStatus
	ItemCount   int
	FinalPrice  decimal.Decimal
}

// ItemDetail - позиция заказа с именем товара из каталога.
type ItemDetail struct {
	ID           string
	ProductID    string
	ProductName  string
	Quantity     int32
	PriceAtOrder decimal.Decimal
	TotalPrice   decimal.Decimal
	CreatedAt    time.Time
}

// Detail - полное представление заказа с позициями.
type Detail struct {
	Summary
	Items     []ItemDetail
	CreatedAt time.Time
	UpdatedAt time.Time
}

func summarize(o domain.Order) Summary {
	return Summary{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Date:        o.Date,
		Status:      o.Status,
		ItemCount:   o.ItemCount(),
		FinalPrice:  o.TotalPrice(),
	}
}
