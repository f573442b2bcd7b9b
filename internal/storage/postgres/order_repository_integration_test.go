package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

func integrationOrder(t *testing.T, number string, products ...domain.Product) domain.Order {
	t.Helper()

	order, err := domain.NewOrder(number)
	require.NoError(t, err)
	for i, p := range products {
		require.NoError(t, order.AddItem(p, int32(i+1)))
	}
	return order
}

func integrationProduct(price string) domain.Product {
	return domain.Product{ID: uuid.NewString(), Name: "product", UnitPrice: decimal.RequireFromString(price)}
}

func countRows(t *testing.T, store *Store, query string, args ...any) int {
	t.Helper()

	var n int
	require.NoError(t, store.DB().QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func TestOrderRepository_PostgresRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	p1, p2 := integrationProduct("10.00"), integrationProduct("5.50")
	order := integrationOrder(t, "ORD-1", p1, p2)

	created, err := repo.Create(ctx, order)
	require.NoError(t, err)
	require.Equal(t, order.OrderNumber, created.OrderNumber)
	require.Equal(t, order.Status, created.Status)
	require.Equal(t, 2, created.ItemCount())
	// 10.00*1 + 5.50*2
	require.True(t, created.TotalPrice().Equal(decimal.RequireFromString("21.00")), "total=%s", created.TotalPrice())

	fetched, found, err := repo.FetchByID(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.ElementsMatch(t,
		[]string{p1.ID, p2.ID},
		[]string{fetched.Items[0].ProductID, fetched.Items[1].ProductID},
	)
	for _, item := range fetched.Items {
		require.Equal(t, order.ID, item.OrderID)
	}

	_, found, err = repo.FetchByID(ctx, uuid.NewString())
	require.NoError(t, err)
	require.False(t, found)
}

func TestOrderRepository_PostgresCreateIsAtomic(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store, WithOutboxEvents())
	ctx := context.Background()

	order := integrationOrder(t, "ORD-BROKEN", integrationProduct("1.00"))
	// quantity = 0 нарушает CHECK на order_items уже после вставки строки заказа.
	order.Items[0].Quantity = 0

	_, err := repo.Create(ctx, order)
	require.ErrorIs(t, err, domain.ErrPersistence)

	require.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM orders WHERE id = $1`, order.ID))
	require.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, order.ID))
	require.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM outbox_messages WHERE aggregate_id = $1`, order.ID))
}

func TestOrderRepository_PostgresUpdateIsAtomic(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	order := integrationOrder(t, "ORD-1", integrationProduct("10.00"))
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	broken := order.Clone()
	require.NoError(t, broken.Rename("ORD-RENAMED"))
	broken.Items[0].Quantity = 0

	_, _, err = repo.Update(ctx, order.ID, broken)
	require.ErrorIs(t, err, domain.ErrPersistence)

	stored, found, err := repo.FetchByID(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ORD-1", stored.OrderNumber)
	require.Equal(t, 1, stored.ItemCount())
	require.Equal(t, int32(1), stored.Items[0].Quantity)
}

func TestOrderRepository_PostgresUpdateReplacesItems(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store, WithOutboxEvents())
	ctx := context.Background()

	p1, p2 := integrationProduct("10.00"), integrationProduct("5.00")
	order := integrationOrder(t, "ORD-1", p1)
	require.NoError(t, order.AddItem(p1, 1))
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	require.NoError(t, order.ClearItems())
	require.NoError(t, order.AddItem(p1, 1))
	require.NoError(t, order.AddItem(p2, 1))
	require.NoError(t, order.SetStatus(domain.OrderStatusInProgress))

	updated, found, err := repo.Update(ctx, order.ID, order)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, updated.ItemCount())
	require.Equal(t, domain.OrderStatusInProgress, updated.Status)
	require.True(t, updated.TotalPrice().Equal(decimal.NewFromInt(15)), "total=%s", updated.TotalPrice())

	_, found, err = repo.Update(ctx, uuid.NewString(), order)
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, 2, countRows(t, store, `SELECT COUNT(*) FROM outbox_messages WHERE aggregate_id = $1`, order.ID))
}

func TestOrderRepository_PostgresDeleteCascades(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	order := integrationOrder(t, "ORD-1", integrationProduct("3.00"), integrationProduct("4.00"))
	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, order.ID))

	deleted, err = repo.Delete(ctx, order.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestOrderRepository_PostgresFetchAllOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	first := integrationOrder(t, "ORD-1", integrationProduct("1.00"))
	second := integrationOrder(t, "ORD-2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)

	_, err := repo.Create(ctx, second)
	require.NoError(t, err)
	_, err = repo.Create(ctx, first)
	require.NoError(t, err)

	orders, err := repo.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "ORD-1", orders[0].OrderNumber)
	require.Equal(t, 1, orders[0].ItemCount())
	require.Equal(t, "ORD-2", orders[1].OrderNumber)
	require.Equal(t, 0, orders[1].ItemCount())
}

func TestOrderRepository_PostgresKeepsItemOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	p1, p2, p3 := integrationProduct("1.00"), integrationProduct("2.00"), integrationProduct("3.00")
	order := integrationOrder(t, "ORD-LINES", p1, p2, p3)
	sameInstant := time.Now().UTC().Truncate(time.Microsecond)
	for i := range order.Items {
		order.Items[i].CreatedAt = sameInstant
	}

	_, err := repo.Create(ctx, order)
	require.NoError(t, err)

	productIDs := func(o domain.Order) []string {
		ids := make([]string, 0, len(o.Items))
		for _, item := range o.Items {
			ids = append(ids, item.ProductID)
		}
		return ids
	}

	fetched, found, err := repo.FetchByID(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{p1.ID, p2.ID, p3.ID}, productIDs(fetched))

	// новая позиция первой, перенесённые позиции сохраняют старый created_at.
	p4 := integrationProduct("4.00")
	fresh := domain.OrderItem{
		ID:           uuid.NewString(),
		OrderID:      order.ID,
		ProductID:    p4.ID,
		Quantity:     1,
		PriceAtOrder: p4.UnitPrice,
		CreatedAt:    sameInstant.Add(time.Hour),
	}
	order.Items = []domain.OrderItem{fresh, order.Items[2], order.Items[0]}

	_, found, err = repo.Update(ctx, order.ID, order)
	require.NoError(t, err)
	require.True(t, found)

	fetched, found, err = repo.FetchByID(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{p4.ID, p3.ID, p1.ID}, productIDs(fetched))

	all, err := repo.FetchAll(ctx)
	require.NoError(t, err)
	for _, o := range all {
		if o.ID == order.ID {
			require.Equal(t, []string{p4.ID, p3.ID, p1.ID}, productIDs(o))
		}
	}
}
