// Package seed наполняет хранилище демонстрационным каталогом и заказами.
package seed

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	ordersvc "github.com/vladislavdragonenkov/orders-api/internal/service/order"
	productsvc "github.com/vladislavdragonenkov/orders-api/internal/service/product"
)

// OrderService - операции сервиса заказов, которые использует seed.
type OrderService interface {
	ListOrders(ctx context.Context) ([]ordersvc.Summary, error)
	DeleteOrder(ctx context.Context, id string) (bool, error)
	CreateOrder(ctx context.Context, in ordersvc.CreateInput) (ordersvc.Detail, error)
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (ordersvc.Detail, error)
}

// ProductService - операции каталога, которые использует seed.
type ProductService interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (bool, error)
	CreateProduct(ctx context.Context, in productsvc.CreateInput) (domain.Product, error)
}

// Result - сколько записей удалено и создано.
type Result struct {
	DeletedOrders   int
	DeletedProducts int
	Products        []domain.Product
	Orders          []ordersvc.Detail
}

type productSeed struct {
	key   string
	name  string
	price string
}

type lineSeed struct {
	product  string
	quantity int32
}

type orderSeed struct {
	number string
	status domain.OrderStatus
	lines  []lineSeed
}

var catalog = []productSeed{
	{key: "laptop", name: `Laptop Gamer Pro 16"`, price: "1899.99"},
	{key: "mouse", name: "Wireless Ergonomic Mouse", price: "79.50"},
	{key: "keyboard", name: "RGB Mechanical Keyboard", price: "125.00"},
	{key: "monitor", name: `Ultrawide Curved Monitor 34"`, price: "850.00"},
}

var orders = []orderSeed{
	{
		number: "ORD-2025-001",
		status: domain.OrderStatusCompleted,
		lines:  []lineSeed{{product: "laptop", quantity: 1}, {product: "mouse", quantity: 1}},
	},
	{
		number: "ORD-2025-002",
		status: domain.OrderStatusInProgress,
		lines:  []lineSeed{{product: "monitor", quantity: 1}, {product: "keyboard", quantity: 2}},
	},
	{
		number: "ORD-2025-003",
		status: domain.OrderStatusPending,
		lines:  []lineSeed{{product: "laptop", quantity: 1}},
	},
}

// Run удаляет все заказы и товары, затем создаёт каталог и три заказа
// в статусах COMPLETED, IN_PROGRESS и PENDING.
func Run(ctx context.Context, orderSvc OrderService, productSvc ProductService, logger *log.Entry) (Result, error) {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}
	var res Result

	existingOrders, err := orderSvc.ListOrders(ctx)
	if err != nil {
		return res, fmt.Errorf("list orders: %w", err)
	}
	for _, o := range existingOrders {
		if _, err := orderSvc.DeleteOrder(ctx, o.ID); err != nil {
			return res, fmt.Errorf("delete order %s: %w", o.OrderNumber, err)
		}
		res.DeletedOrders++
	}

	existingProducts, err := productSvc.ListProducts(ctx)
	if err != nil {
		return res, fmt.Errorf("list products: %w", err)
	}
	for _, p := range existingProducts {
		if _, err := productSvc.DeleteProduct(ctx, p.ID); err != nil {
			return res, fmt.Errorf("delete product %s: %w", p.Name, err)
		}
		res.DeletedProducts++
	}
	logger.WithFields(log.Fields{
		"orders":   res.DeletedOrders,
		"products": res.DeletedProducts,
	}).Info("existing data removed")

	ids := make(map[string]string, len(catalog))
	for _, ps := range catalog {
		p, err := productSvc.CreateProduct(ctx, productsvc.CreateInput{
			Name:      ps.name,
			UnitPrice: decimal.RequireFromString(ps.price),
		})
		if err != nil {
			return res, fmt.Errorf("create product %s: %w", ps.name, err)
		}
		ids[ps.key] = p.ID
		res.Products = append(res.Products, p)
	}

	for _, so := range orders {
		items := make([]ordersvc.ItemInput, 0, len(so.lines))
		for _, line := range so.lines {
			items = append(items, ordersvc.ItemInput{ProductID: ids[line.product], Quantity: line.quantity})
		}

		created, err := orderSvc.CreateOrder(ctx, ordersvc.CreateInput{OrderNumber: so.number, Items: items})
		if err != nil {
			return res, fmt.Errorf("create order %s: %w", so.number, err)
		}
		if so.status != created.Status {
			created, err = orderSvc.UpdateOrderStatus(ctx, created.ID, so.status)
			if err != nil {
				return res, fmt.Errorf("set status %s on order %s: %w", so.status, so.number, err)
			}
		}
		res.Orders = append(res.Orders, created)
	}

	logger.WithFields(log.Fields{
		"products": len(res.Products),
		"orders":   len(res.Orders),
	}).Info("seed completed")
	return res, nil
}
