package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

const productColumns = `id, name, unit_price, created_at, updated_at`

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога товаров.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *productRepository) GetByID(ctx context.Context, id string) (domain.Product, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, domain.PersistenceError("select product", err)
	}
	return product, true, nil
}

func (r *productRepository) GetAll(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, domain.PersistenceError("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, domain.PersistenceError("scan product", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError("iterate products", err)
	}
	return products, nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}

	created, err := scanProduct(r.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, unit_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING `+productColumns,
		product.ID, product.Name, domain.NormalizePrice(product.UnitPrice), product.CreatedAt, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, domain.ErrProductConflict
		}
		return domain.Product{}, domain.PersistenceError("insert product", err)
	}
	return created, nil
}

// Update применяет патч одной командой: NULL-параметры оставляют колонку как есть.
func (r *productRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		name  sql.NullString
		price decimal.NullDecimal
	)
	if patch.Name != nil {
		name = sql.NullString{String: strings.TrimSpace(*patch.Name), Valid: true}
	}
	if patch.UnitPrice != nil {
		price = decimal.NullDecimal{Decimal: domain.NormalizePrice(*patch.UnitPrice), Valid: true}
	}

	updated, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = COALESCE($2, name),
		    unit_price = COALESCE($3, unit_price),
		    updated_at = $4
		WHERE id = $1
		RETURNING `+productColumns,
		id, name, price, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, domain.PersistenceError("update product", err)
	}
	return updated, true, nil
}

func (r *productRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, domain.PersistenceError("delete product", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, domain.PersistenceError("delete product rows affected", err)
	}
	return affected > 0, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
