package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	// orderItemColumns - число параметров на одну строку bulk insert.
	orderItemColumns = 7

	selectOrdersWithItems = `
		SELECT o.id, o.order_number, o.order_date, o.status, o.created_at, o.updated_at,
		       i.id, i.product_id, i.quantity, i.price_at_order, i.created_at
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
	`
)

// execer - общий интерфейс *sql.DB и *sql.Tx для записи.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// errOrderAbsent откатывает транзакцию Update, когда строки заказа нет.
var errOrderAbsent = errors.New("order row is absent")

type orderRepository struct {
	store         *Store
	outboxEnabled bool
}

// OrderRepositoryOption настраивает PostgreSQL-репозиторий заказов.
type OrderRepositoryOption func(*orderRepository)

// WithOutboxEvents включает запись событий заказа в outbox_messages той же транзакцией.
func WithOutboxEvents() OrderRepositoryOption {
	return func(r *orderRepository) {
		r.outboxEnabled = true
	}
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store, opts ...OrderRepositoryOption) domain.OrderRepository {
	r := &orderRepository{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *orderRepository) FetchByID(ctx context.Context, id string) (domain.Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	orders, err := r.queryOrders(ctx, selectOrdersWithItems+`
		WHERE o.id = $1
		ORDER BY i.line_no ASC, i.id ASC
	`, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	if len(orders) == 0 {
		return domain.Order{}, false, nil
	}
	return orders[0], true, nil
}

func (r *orderRepository) FetchAll(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.queryOrders(ctx, selectOrdersWithItems+`
		ORDER BY o.created_at ASC, o.id ASC, i.line_no ASC, i.id ASC
	`)
}

// Create записывает заказ, все позиции и outbox-событие одной транзакцией.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.store.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, order_number, order_date, status, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			order.ID, order.OrderNumber, order.Date, string(order.Status),
			order.CreatedAt, order.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderConflict
			}
			return domain.PersistenceError("insert order", err)
		}

		if err := insertOrderItems(ctx, tx, order.ID, order.Items); err != nil {
			return err
		}
		return r.enqueueEvent(ctx, tx, domain.EventOrderCreated, order)
	})
	if err != nil {
		return domain.Order{}, err
	}

	return r.reload(ctx, order.ID)
}

// Update меняет номер и статус заказа и полностью заменяет позиции.
// Если строки заказа нет, транзакция откатывается и возвращается found=false.
func (r *orderRepository) Update(ctx context.Context, id string, order domain.Order) (domain.Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updatedAt := order.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	err := r.store.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET order_number = $1,
			    status = $2,
			    updated_at = $3
			WHERE id = $4
		`, order.OrderNumber, string(order.Status), updatedAt, id)
		if err != nil {
			return domain.PersistenceError("update order", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return domain.PersistenceError("update order rows affected", err)
		}
		if affected == 0 {
			return errOrderAbsent
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
			return domain.PersistenceError("delete order items", err)
		}
		if err := insertOrderItems(ctx, tx, id, order.Items); err != nil {
			return err
		}

		order.ID = id
		return r.enqueueEvent(ctx, tx, domain.EventOrderUpdated, order)
	})
	if errors.Is(err, errOrderAbsent) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}

	updated, err := r.reload(ctx, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	return updated, true, nil
}

// Delete удаляет заказ; позиции удаляются каскадом.
func (r *orderRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	deleted := false
	err := r.store.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
		if err != nil {
			return domain.PersistenceError("delete order", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.PersistenceError("delete order rows affected", err)
		}
		if affected == 0 {
			return nil
		}
		deleted = true
		return r.enqueueEvent(ctx, tx, domain.EventOrderDeleted, domain.Order{ID: id})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (r *orderRepository) reload(ctx context.Context, id string) (domain.Order, error) {
	order, found, err := r.FetchByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !found {
		return domain.Order{}, domain.PersistenceError("reload order", domain.ErrOrderNotFound)
	}
	return order, nil
}

func (r *orderRepository) enqueueEvent(ctx context.Context, tx execer, eventType string, order domain.Order) error {
	if !r.outboxEnabled {
		return nil
	}
	msg, err := domain.NewOrderEvent(eventType, order)
	if err != nil {
		return domain.PersistenceError("build outbox event", err)
	}
	return insertOutboxMessage(ctx, tx, msg)
}

// queryOrders читает заказы одним LEFT JOIN и собирает позиции по заказам,
// сохраняя порядок строк.
func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError("select orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			order         domain.Order
			status        string
			itemID        sql.NullString
			productID     sql.NullString
			quantity      sql.NullInt32
			priceAtOrder  decimal.NullDecimal
			itemCreatedAt sql.NullTime
		)
		if err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.Date, &status, &order.CreatedAt, &order.UpdatedAt,
			&itemID, &productID, &quantity, &priceAtOrder, &itemCreatedAt,
		); err != nil {
			return nil, domain.PersistenceError("scan order row", err)
		}

		pos, seen := index[order.ID]
		if !seen {
			order.Status = domain.OrderStatus(status)
			order.Items = make([]domain.OrderItem, 0)
			orders = append(orders, order)
			pos = len(orders) - 1
			index[order.ID] = pos
		}
		if !itemID.Valid {
			continue
		}
		orders[pos].Items = append(orders[pos].Items, domain.OrderItem{
			ID:           itemID.String,
			OrderID:      order.ID,
			ProductID:    productID.String,
			Quantity:     quantity.Int32,
			PriceAtOrder: priceAtOrder.Decimal,
			CreatedAt:    itemCreatedAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError("iterate order rows", err)
	}

	return orders, nil
}

// insertOrderItems вставляет все позиции одним multi-row INSERT.
// line_no - индекс позиции в срезе, по нему позиции читаются обратно.
func insertOrderItems(ctx context.Context, tx execer, orderID string, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	now := time.Now().UTC()
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*orderItemColumns)
	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}

		base := i * orderItemColumns
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, item.ID, orderID, item.ProductID, item.Quantity, item.PriceAtOrder, item.CreatedAt, i)
	}

	query := `INSERT INTO order_items (id, order_id, product_id, quantity, price_at_order, created_at, line_no) VALUES ` +
		strings.Join(placeholders, ",")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return domain.PersistenceError("insert order items", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
