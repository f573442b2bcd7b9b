package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

const defaultConnTimeout = 5 * time.Second

// poolOptions - настройки пула database/sql.
type poolOptions struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

// Option меняет настройки пула при Open. Неположительные значения игнорируются.
type Option func(*poolOptions)

func WithMaxOpenConns(n int) Option {
	return func(o *poolOptions) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

func WithMaxIdleConns(n int) Option {
	return func(o *poolOptions) {
		if n > 0 {
			o.maxIdleConns = n
		}
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *poolOptions) {
		if d > 0 {
			o.connMaxLifetime = d
		}
	}
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open открывает пул подключений к PostgreSQL через драйвер pgx и проверяет,
// что база отвечает. Ошибка ping закрывает пул.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool := poolOptions{
		maxOpenConns:    25,
		maxIdleConns:    25,
		connMaxLifetime: 30 * time.Minute,
		connMaxIdleTime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&pool)
	}
	if pool.maxIdleConns > pool.maxOpenConns {
		pool.maxIdleConns = pool.maxOpenConns
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, domain.PersistenceError("open postgres", err)
	}
	db.SetMaxOpenConns(pool.maxOpenConns)
	db.SetMaxIdleConns(pool.maxIdleConns)
	db.SetConnMaxLifetime(pool.connMaxLifetime)
	db.SetConnMaxIdleTime(pool.connMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, domain.PersistenceError("ping postgres", err)
	}
	return store, nil
}

// NewStore оборачивает уже открытое подключение (миграционные утилиты, тесты).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB { return s.db }

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// InTx выполняет fn в одной транзакции. Любая ошибка или паника откатывает
// все изменения; коммит происходит только при успешном fn.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PersistenceError("begin tx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return domain.PersistenceError("commit tx", err)
	}
	return nil
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
