package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	ordersvc "github.com/vladislavdragonenkov/orders-api/internal/service/order"
)

// money сериализуется JSON-числом с двумя знаками после точки: 20.00.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

type orderItemRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Quantity  int32  `json:"quantity" binding:"gt=0"`
}

type createOrderRequest struct {
	OrderNumber string             `json:"orderNumber" binding:"required"`
	Items       []orderItemRequest `json:"items" binding:"dive"`
}

// updateOrderDataRequest: отсутствующее поле не меняется, "items": [] очищает позиции.
type updateOrderDataRequest struct {
	OrderNumber *string            `json:"orderNumber" binding:"omitempty,min=1"`
	Items       []orderItemRequest `json:"items" binding:"dive"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING IN_PROGRESS COMPLETED"`
}

type createProductRequest struct {
	Name      string          `json:"name" binding:"required,min=3"`
	UnitPrice decimal.Decimal `json:"unitPrice" binding:"gt=0"`
}

type updateProductRequest struct {
	Name      *string          `json:"name" binding:"omitempty,min=3"`
	UnitPrice *decimal.Decimal `json:"unitPrice" binding:"omitempty,gt=0"`
}

type orderSummaryResponse struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"orderNumber"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
	ItemCount   int       `json:"itemCount"`
	FinalPrice  money     `json:"finalPrice"`
}

type orderItemResponse struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	ProductName  string    `json:"productName"`
	Quantity     int32     `json:"quantity"`
	PriceAtOrder money     `json:"priceAtOrder"`
	TotalPrice   money     `json:"totalPrice"`
	CreatedAt    time.Time `json:"createdAt"`
}

type orderDetailResponse struct {
	orderSummaryResponse
	Items     []orderItemResponse `json:"items"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type productResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UnitPrice money     `json:"unitPrice"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type deletedResponse struct {
	ID string `json:"id"`
}

func toItemInputs(items []orderItemRequest) []ordersvc.ItemInput {
	if items == nil {
		return nil
	}
	out := make([]ordersvc.ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ordersvc.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

func toOrderSummary(s ordersvc.Summary) orderSummaryResponse {
	return orderSummaryResponse{
		ID:          s.ID,
		OrderNumber: s.OrderNumber,
		Date:        s.Date,
		Status:      string(s.Status),
		ItemCount:   s.ItemCount,
		FinalPrice:  money(s.FinalPrice),
	}
}

func toOrderDetail(d ordersvc.Detail) orderDetailResponse {
	items := make([]orderItemResponse, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, orderItemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity,
			PriceAtOrder: money(item.PriceAtOrder),
			TotalPrice:   money(item.TotalPrice),
			CreatedAt:    item.CreatedAt,
		})
	}
	return orderDetailResponse{
		orderSummaryResponse: toOrderSummary(d.Summary),
		Items:                items,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

func toProduct(p domain.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: money(p.UnitPrice),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
