// Package cache содержит read-through кэш каталога товаров поверх Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/metrics"
)

const (
	// DefaultTTL используется, если TTL не задан в конфигурации.
	DefaultTTL = 5 * time.Minute

	keyPrefix        = "orders:product:"
	versionKeyPrefix = "orders:product-version:"

	// versionTTL заметно больше любого чтения из хранилища.
	versionTTL = 24 * time.Hour
)

// storeIfCurrentScript пишет товар, только если версия ключа не менялась с начала чтения.
// KEYS[1] - товар, KEYS[2] - версия; ARGV: ожидаемая версия, payload, ttl в мс.
var storeIfCurrentScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// cachedProduct - JSON-представление товара в Redis.
type cachedProduct struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProductCache оборачивает ProductRepository: GetByID читается через Redis,
// изменения инвалидируют ключ. Ошибки Redis не ломают запрос, чтение идёт в хранилище.
//
// Update и Delete увеличивают версию товара до и после записи в хранилище;
// промах кэша сохраняет прочитанный товар, только если версия не сдвинулась.
// Товары, для которых инвалидация не удалась, читаются мимо кэша, пока
// очередная инвалидация не пройдёт.
type ProductCache struct {
	next    domain.ProductRepository
	rdb     redis.UniversalClient
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.OrderMetrics

	mu    sync.Mutex
	dirty map[string]struct{}
}

// Option настраивает ProductCache.
type Option func(*ProductCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *ProductCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(c *ProductCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(c *ProductCache) {
		c.metrics = m
	}
}

// NewProductCache создаёт кэширующую обёртку над репозиторием товаров.
func NewProductCache(next domain.ProductRepository, rdb redis.UniversalClient, opts ...Option) *ProductCache {
	c := &ProductCache{
		next:   next,
		rdb:    rdb,
		ttl:    DefaultTTL,
		logger: log.New().WithField("component", "product-cache"),
		dirty:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func productKey(id string) string {
	return keyPrefix + id
}

func versionKey(id string) string {
	return versionKeyPrefix + id
}

func (c *ProductCache) GetByID(ctx context.Context, id string) (domain.Product, bool, error) {
	if c.isDirty(id) {
		if err := c.invalidate(ctx, id); err != nil {
			c.metrics.RecordCacheResult(metrics.CacheBypass)
			return c.next.GetByID(ctx, id)
		}
		c.clearDirty(id)
	}

	raw, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	switch {
	case err == nil:
		var cached cachedProduct
		if decodeErr := json.Unmarshal(raw, &cached); decodeErr == nil {
			c.metrics.RecordCacheResult(metrics.CacheHit)
			return domain.Product{
				ID:        cached.ID,
				Name:      cached.Name,
				UnitPrice: cached.UnitPrice,
				CreatedAt: cached.CreatedAt,
				UpdatedAt: cached.UpdatedAt,
			}, true, nil
		}
		c.metrics.RecordCacheResult(metrics.CacheError)
		c.logger.WithField("product_id", id).Warn("corrupted product cache entry")
	case errors.Is(err, redis.Nil):
		c.metrics.RecordCacheResult(metrics.CacheMiss)
	default:
		c.metrics.RecordCacheResult(metrics.CacheError)
		c.logger.WithError(err).WithField("product_id", id).Warn("product cache read failed")
	}

	version, versionErr := c.version(ctx, id)

	p, found, err := c.next.GetByID(ctx, id)
	if err != nil || !found {
		return p, found, err
	}
	if versionErr == nil {
		c.storeIfCurrent(ctx, p, version)
	}
	return p, true, nil
}

func (c *ProductCache) GetAll(ctx context.Context) ([]domain.Product, error) {
	return c.next.GetAll(ctx)
}

func (c *ProductCache) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	created, err := c.next.Create(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	payload, err := encodeProduct(created)
	if err == nil {
		if err := c.rdb.Set(ctx, productKey(created.ID), payload, c.ttl).Err(); err != nil {
			c.logger.WithError(err).WithField("product_id", created.ID).Warn("product cache write failed")
		}
	}
	return created, nil
}

func (c *ProductCache) Update(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, bool, error) {
	_ = c.invalidate(ctx, id)
	updated, found, err := c.next.Update(ctx, id, patch)
	c.invalidateAfterWrite(ctx, id)
	return updated, found, err
}

func (c *ProductCache) Delete(ctx context.Context, id string) (bool, error) {
	_ = c.invalidate(ctx, id)
	deleted, err := c.next.Delete(ctx, id)
	c.invalidateAfterWrite(ctx, id)
	return deleted, err
}

func encodeProduct(p domain.Product) ([]byte, error) {
	return json.Marshal(cachedProduct{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	})
}

// version возвращает текущую версию товара; отсутствие ключа - версия "0".
func (c *ProductCache) version(ctx context.Context, id string) (string, error) {
	v, err := c.rdb.Get(ctx, versionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return v, err
}

func (c *ProductCache) storeIfCurrent(ctx context.Context, p domain.Product, version string) {
	payload, err := encodeProduct(p)
	if err != nil {
		return
	}
	stored, err := storeIfCurrentScript.Run(ctx, c.rdb,
		[]string{productKey(p.ID), versionKey(p.ID)},
		version, payload, strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Int()
	if err != nil {
		c.logger.WithError(err).WithField("product_id", p.ID).Warn("product cache write failed")
		return
	}
	if stored == 0 {
		c.metrics.RecordCacheResult(metrics.CacheStale)
		c.logger.WithField("product_id", p.ID).Debug("product changed during read, cache write skipped")
	}
}

// invalidate сдвигает версию товара и удаляет закэшированное значение.
func (c *ProductCache) invalidate(ctx context.Context, id string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(id))
		pipe.Expire(ctx, versionKey(id), versionTTL)
		pipe.Del(ctx, productKey(id))
		return nil
	})
	return err
}

// invalidateAfterWrite помечает товар грязным, если Redis не принял инвалидацию.
func (c *ProductCache) invalidateAfterWrite(ctx context.Context, id string) {
	if err := c.invalidate(ctx, id); err != nil {
		c.markDirty(id)
		c.metrics.RecordCacheResult(metrics.CacheError)
		c.logger.WithError(err).WithField("product_id", id).Warn("product cache invalidation failed, reads bypass cache")
		return
	}
	c.clearDirty(id)
}

func (c *ProductCache) isDirty(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.dirty[id]
	return ok
}

func (c *ProductCache) markDirty(id string) {
	c.mu.Lock()
	c.dirty[id] = struct{}{}
	c.mu.Unlock()
}

func (c *ProductCache) clearDirty(id string) {
	c.mu.Lock()
	delete(c.dirty, id)
	c.mu.Unlock()
}

// Ping проверяет соединение с Redis (для /healthz).
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

var _ domain.ProductRepository = (*ProductCache)(nil)
