// Package httpapi - JSON API заказов и каталога поверх gin.
package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/transport/http/middleware"
	"github.com/vladislavdragonenkov/orders-api/internal/transport/http/response"
)

// RouterConfig - параметры сборки роутера.
type RouterConfig struct {
	APIVersion int
	Logger     *log.Entry
	// Idempotency включает Idempotency-Key для POST-запросов; nil отключает.
	Idempotency middleware.IdempotencyGuard
}

// NewRouter собирает gin.Engine с маршрутами /api/v{N}.
func NewRouter(cfg RouterConfig, orders *OrderHandler, products *ProductHandler) *gin.Engine {
	if cfg.APIVersion <= 0 {
		cfg.APIVersion = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	r := gin.New()
	r.Use(
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			logger.WithFields(log.Fields{
				"request_id": middleware.RequestIDFrom(c),
				"panic":      fmt.Sprint(recovered),
			}).Error("handler panic")
			response.Fail(c, http.StatusInternalServerError, internalErrorMessage)
		}),
		middleware.RequestID(),
		middleware.SecureHeaders(),
		middleware.Metrics(),
		middleware.Logging(logger),
	)
	r.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, "route not found")
	})

	idem := middleware.Idempotency(cfg.Idempotency, logger.WithField("layer", "idempotency"))

	api := r.Group(fmt.Sprintf("/api/v%d", cfg.APIVersion))
	{
		api.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "API is up!"})
		})

		api.GET("/orders", orders.ListOrders)
		api.GET("/orders/:id", orders.GetOrder)
		api.POST("/orders", idem, orders.CreateOrder)
		api.PATCH("/orders/data/:id", orders.UpdateOrderData)
		api.PATCH("/orders/status/:id", orders.UpdateOrderStatus)
		api.DELETE("/orders/:id", orders.DeleteOrder)

		api.GET("/products", products.ListProducts)
		api.GET("/products/:id", products.GetProduct)
		api.POST("/products", idem, products.CreateProduct)
		api.PATCH("/products/:id", products.UpdateProduct)
		api.DELETE("/products/:id", products.DeleteProduct)
	}

	return r
}
