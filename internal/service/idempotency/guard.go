// Package idempotency реализует повторную обработку запросов с заголовком Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

// DefaultTTL - срок жизни ключа, если он не задан в конфигурации.
const DefaultTTL = 24 * time.Hour

// Guard занимает ключ до обработки запроса и сохраняет ответ после.
type Guard struct {
	repo domain.IdempotencyRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		repo: repo,
		ttl:  ttl,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// RequestHash связывает ключ с методом, маршрутом и телом запроса.
func RequestHash(method, route string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin занимает ключ. replay=true означает, что ответ уже сохранён и его надо вернуть
// без повторной обработки. Ключ в обработке и чужое тело дают ошибку конфликта.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (record domain.IdempotencyRecord, replay bool, err error) {
	record, err = g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return record, false, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && record.Replayable():
		return record, true, nil
	default:
		return domain.IdempotencyRecord{}, false, err
	}
}

// Complete сохраняет ответ: 5xx помечается как failed, остальное как done.
func (g *Guard) Complete(ctx context.Context, key string, httpStatus int, body []byte) error {
	if httpStatus >= http.StatusInternalServerError {
		return g.repo.MarkFailed(ctx, key, body, httpStatus)
	}
	return g.repo.MarkDone(ctx, key, body, httpStatus)
}
