package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/transport/http/middleware"
	"github.com/vladislavdragonenkov/orders-api/internal/transport/http/response"
)

const internalErrorMessage = "internal server error"

var registerValidatorOnce sync.Once

// registerValidator учит валидатор gin именам полей из json-тегов и decimal-ценам.
func registerValidator() {
	registerValidatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
	})
}

// bindJSON разбирает тело запроса и пишет 400 с деталями при ошибке.
func bindJSON(c *gin.Context, logger *log.Entry, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		details := bindingDetails(err)
		logger.WithFields(log.Fields{
			"operation":  op,
			"request_id": middleware.RequestIDFrom(c),
		}).WithError(err).Warn("invalid request body")
		response.Fail(c, http.StatusBadRequest, "invalid request body", details...)
		return false
	}
	return true
}

// pathID проверяет, что :id - UUID, и возвращает его в каноническом виде.
func pathID(c *gin.Context) (string, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid id",
			response.FieldError{Field: "id", Message: "must be a valid UUID"})
		return "", false
	}
	return id.String(), true
}

func bindingDetails(err error) []response.FieldError {
	var (
		verrs     validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
	)
	switch {
	case errors.As(err, &verrs):
		details := make([]response.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, response.FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: fieldMessage(fe),
			})
		}
		return details
	case errors.As(err, &typeErr):
		return []response.FieldError{{Field: typeErr.Field, Message: "must be of type " + typeErr.Type.String()}}
	case errors.As(err, &syntaxErr):
		return []response.FieldError{{Field: "body", Message: "malformed JSON"}}
	default:
		return []response.FieldError{{Field: "body", Message: err.Error()}}
	}
}

// fieldPath отрезает имя структуры: createOrderRequest.items[0].quantity -> items[0].quantity.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a valid UUID"
	default:
		return "failed on '" + fe.Tag() + "' rule"
	}
}

// writeError переводит ошибку сервиса в HTTP-статус и логирует её один раз.
// Детали хранилища остаются в логе, клиент получает общий текст.
func writeError(c *gin.Context, logger *log.Entry, op string, err error, fields log.Fields) {
	status, msg := classify(err)

	entry := logger.WithFields(fields).WithFields(log.Fields{
		"operation":  op,
		"status":     status,
		"request_id": middleware.RequestIDFrom(c),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	response.Fail(c, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrReferenceNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, domain.ErrOrderNotFound.Error()
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, domain.ErrProductNotFound.Error()
	case domain.IsIdempotencyConflict(err):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrOrderCompleted):
		return http.StatusInternalServerError, domain.ErrOrderCompleted.Error()
	case errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusInternalServerError, domain.ErrInvalidOperation.Error()
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}
