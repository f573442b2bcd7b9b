package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	productsvc "github.com/vladislavdragonenkov/orders-api/internal/service/product"
	"github.com/vladislavdragonenkov/orders-api/internal/transport/http/response"
)

// ProductService - CRUD каталога для HTTP-слоя.
type ProductService interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CreateProduct(ctx context.Context, in productsvc.CreateInput) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (bool, error)
}

type ProductHandler struct {
	svc    ProductService
	logger *log.Entry
}

func NewProductHandler(svc ProductService, logger *log.Entry) *ProductHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http-products")
	}
	registerValidator()
	return &ProductHandler{svc: svc, logger: logger}
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	products, err := h.svc.ListProducts(ctx)
	if err != nil {
		writeError(c, h.logger, "list_products", err, nil)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProduct(p))
	}
	response.OK(c, http.StatusOK, "products fetched", out)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	p, err := h.svc.GetProduct(ctx, id)
	if err != nil {
		writeError(c, h.logger, "get_product", err, log.Fields{"product_id": id})
		return
	}
	response.OK(c, http.StatusOK, "product fetched", toProduct(p))
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if !bindJSON(c, h.logger, "create_product", &req) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	p, err := h.svc.CreateProduct(ctx, productsvc.CreateInput{Name: req.Name, UnitPrice: req.UnitPrice})
	if err != nil {
		writeError(c, h.logger, "create_product", err, log.Fields{"name": req.Name})
		return
	}
	response.OK(c, http.StatusCreated, "product created", toProduct(p))
}

// UpdateProduct применяет частичное обновление: не переданные поля остаются прежними.
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateProductRequest
	if !bindJSON(c, h.logger, "update_product", &req) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	p, err := h.svc.UpdateProduct(ctx, id, domain.ProductPatch{Name: req.Name, UnitPrice: req.UnitPrice})
	if err != nil {
		writeError(c, h.logger, "update_product", err, log.Fields{"product_id": id})
		return
	}
	response.OK(c, http.StatusOK, "product updated", toProduct(p))
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), handlerTimeout)
	defer cancel()

	deleted, err := h.svc.DeleteProduct(ctx, id)
	if err != nil {
		writeError(c, h.logger, "delete_product", err, log.Fields{"product_id": id})
		return
	}
	if !deleted {
		writeError(c, h.logger, "delete_product", domain.ErrProductNotFound, log.Fields{"product_id": id})
		return
	}
	response.OK(c, http.StatusOK, "product deleted", deletedResponse{ID: id})
}

var _ ProductService = (*productsvc.Service)(nil)
