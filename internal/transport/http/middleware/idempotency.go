package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orders-api/internal/transport/http/response"
)

const (
	// HeaderIdempotencyKey - ключ идемпотентности, который передаёт клиент.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется в ответе, взятом из сохранённого результата.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxIdempotentBody = 1 << 20
)

// IdempotencyGuard занимает ключ и сохраняет результат обработки.
type IdempotencyGuard interface {
	Begin(ctx context.Context, key, requestHash string) (domain.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key string, httpStatus int, body []byte) error
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
// Запросы без заголовка проходят как есть.
func Idempotency(guard IdempotencyGuard, logger *log.Entry) gin.HandlerFunc {
	if logger == nil {
		logger = log.New().WithField("component", "http-idempotency")
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if guard == nil || key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxIdempotentBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Fail(c, http.StatusRequestEntityTooLarge, "request body is too large")
				return
			}
			response.Fail(c, http.StatusBadRequest, "cannot read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		entry := logger.WithFields(log.Fields{
			"request_id":      RequestIDFrom(c),
			"idempotency_key": key,
			"route":           c.FullPath(),
		})

		hash := idempotency.RequestHash(c.Request.Method, c.FullPath(), body)
		record, replay, err := guard.Begin(c.Request.Context(), key, hash)
		switch {
		case errors.Is(err, domain.ErrIdempotencyHashMismatch):
			entry.Warn("idempotency key reused with different payload")
			response.Fail(c, http.StatusConflict, "idempotency key reused with different payload")
			return
		case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
			entry.Warn("idempotency key is still processing")
			response.Fail(c, http.StatusConflict, "request with this idempotency key is in progress")
			return
		case err != nil:
			entry.WithError(err).Error("idempotency begin failed")
			response.Fail(c, http.StatusInternalServerError, "internal server error")
			return
		}

		if replay {
			entry.WithField("status", record.HTTPStatus).Info("idempotent replay")
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		ctx := context.WithoutCancel(c.Request.Context())
		if err := guard.Complete(ctx, key, w.Status(), w.buf.Bytes()); err != nil {
			entry.WithError(err).Warn("failed to store idempotent response")
		}
	}
}

var _ IdempotencyGuard = (*idempotency.Guard)(nil)
