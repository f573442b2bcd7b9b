package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

func TestProductRepository_PostgresCRUD(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.Product{Name: "Teclado Mecanico", UnitPrice: decimal.RequireFromString("125")})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "125", created.UnitPrice.String())

	_, err = repo.Create(ctx, created)
	require.ErrorIs(t, err, domain.ErrProductConflict)

	got, found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created.Name, got.Name)

	price := decimal.RequireFromString("99.999")
	updated, found, err := repo.Update(ctx, created.ID, domain.ProductPatch{UnitPrice: &price})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created.Name, updated.Name)
	require.True(t, updated.UnitPrice.Equal(decimal.RequireFromString("100.00")), "price=%s", updated.UnitPrice)

	_, found, err = repo.Update(ctx, uuid.NewString(), domain.ProductPatch{UnitPrice: &price})
	require.NoError(t, err)
	require.False(t, found)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	deleted, err := repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = repo.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}
