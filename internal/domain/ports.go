package domain

import (
	"context"
	"time"
)

// OrderRepository - шлюз хранения агрегата Order.
// Create и Update выполняются одной транзакцией: строка заказа и все позиции
// записываются вместе или не записываются вовсе.
type OrderRepository interface {
	// FetchByID читает заказ с позициями. Отсутствие заказа - found=false без ошибки.
	FetchByID(ctx context.Context, id string) (Order, bool, error)
	// FetchAll возвращает все заказы с позициями в порядке создания.
	FetchAll(ctx context.Context) ([]Order, error)
	// Create сохраняет новый заказ и возвращает его перечитанное состояние.
	Create(ctx context.Context, order Order) (Order, error)
	// Update обновляет поля заказа и полностью заменяет позиции.
	Update(ctx context.Context, id string, order Order) (Order, bool, error)
	// Delete удаляет заказ вместе с позициями; false, если заказа нет.
	Delete(ctx context.Context, id string) (bool, error)
}

// ProductLookup - доступ на чтение к каталогу, нужный агрегату заказа.
type ProductLookup interface {
	GetByID(ctx context.Context, id string) (Product, bool, error)
	GetAll(ctx context.Context) ([]Product, error)
}

// ProductRepository - хранилище каталога товаров.
type ProductRepository interface {
	ProductLookup
	Create(ctx context.Context, product Product) (Product, error)
	// Update применяет патч; found=false, если товара нет.
	Update(ctx context.Context, id string, patch ProductPatch) (Product, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
