package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	ordersvc "github.com/vladislavdragonenkov/orders-api/internal/service/order"
	"github.com/vladislavdragonenkov/orders-api/internal/transport/http/response"
)

const handlerTimeout = 5 * time.Second

// OrderService - операции над заказами, доступные HTTP-слою.
type OrderService interface {
	ListOrders(ctx context.Context) ([]ordersvc.Summary, error)
	GetOrder(ctx context.Context, id string) (ordersvc.Detail, error)
	CreateOrder(ctx context.Context, in ordersvc.CreateInput) (ordersvc.Detail, error)
	UpdateOrder(ctx context.Context, id string, in ordersvc.UpdateInput) (ordersvc.Detail, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (ordersvc.Detail, error)
	DeleteOrder(ctx context.Context, id string) (bool, error)
}

type OrderHandler struct {
	svc    OrderService
	logger *log.Entry
}

func NewOrderHandler(svc OrderService, logger *log.Entry) *OrderHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http-orders")
	}
	registerValidator()
	return &OrderHandler{svc: svc, logger: logger}
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	orders, err := h.svc.ListOrders(ctx)
	if err != nil {
		writeError(c, h.logger, "list_orders", err, nil)
		return
	}

	out := make([]orderSummaryResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderSummary(o))
	}
	response.OK(c, http.StatusOK, "orders fetched", out)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	detail, err := h.svc.GetOrder(ctx, id)
	if err != nil {
		writeError(c, h.logger, "get_order", err, log.Fields{"order_id": id})
		return
	}
	response.OK(c, http.StatusOK, "order fetched", toOrderDetail(detail))
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if !bindJSON(c, h.logger, "create_order", &req) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	detail, err := h.svc.CreateOrder(ctx, ordersvc.CreateInput{
		OrderNumber: req.OrderNumber,
		Items:       toItemInputs(req.Items),
	})
	if err != nil {
		writeError(c, h.logger, "create_order", err, log.Fields{"order_number": req.OrderNumber})
		return
	}
	response.OK(c, http.StatusCreated, "order created", toOrderDetail(detail))
}

// UpdateOrderData меняет номер заказа и/или заменяет позиции.
func (h *OrderHandler) UpdateOrderData(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateOrderDataRequest
	if !bindJSON(c, h.logger, "update_order", &req) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	detail, err := h.svc.UpdateOrder(ctx, id, ordersvc.UpdateInput{
		OrderNumber: req.OrderNumber,
		Items:       toItemInputs(req.Items),
	})
	if err != nil {
		writeError(c, h.logger, "update_order", err, log.Fields{"order_id": id})
		return
	}
	response.OK(c, http.StatusOK, "order updated", toOrderDetail(detail))
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !bindJSON(c, h.logger, "update_order_status", &req) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	detail, err := h.svc.UpdateOrderStatus(ctx, id, domain.OrderStatus(req.Status))
	if err != nil {
		writeError(c, h.logger, "update_order_status", err, log.Fields{"order_id": id, "to": req.Status})
		return
	}
	response.OK(c, http.StatusOK, "order status updated", toOrderDetail(detail))
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	deleted, err := h.svc.DeleteOrder(ctx, id)
	if err != nil {
		writeError(c, h.logger, "delete_order", err, log.Fields{"order_id": id})
		return
	}
	if !deleted {
		writeError(c, h.logger, "delete_order", domain.ErrOrderNotFound, log.Fields{"order_id": id})
		return
	}
	response.OK(c, http.StatusOK, "order deleted", deletedResponse{ID: id})
}

var _ OrderService = (*ordersvc.Service)(nil)
