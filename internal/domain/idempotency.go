package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing - запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone - запрос завершён, ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed - обработка завершилась ошибкой, ответ тоже сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит состояние обработки запроса с idempotency-key.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Replayable - для ключа уже сохранён ответ, его можно вернуть повторно.
func (r IdempotencyRecord) Replayable() bool {
	return (r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed) && r.HTTPStatus > 0
}

// Expired сообщает, что срок жизни ключа истёк к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// NormalizeIdempotencyInput обрезает пробелы и проверяет обязательные поля.
func NormalizeIdempotencyInput(key, requestHash string) (string, string, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return "", "", ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return "", "", ErrIdempotencyRequestHashRequired
	}
	return key, requestHash, nil
}
