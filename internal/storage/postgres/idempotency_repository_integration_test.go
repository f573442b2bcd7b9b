package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
)

func TestIdempotencyRepository_PostgresCreateGetAndMarkDone(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	key := "idem-test-key-done"
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, key, "req-hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	require.NoError(t, repo.MarkDone(ctx, key, []byte(`{"success":true}`), 201))

	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "req-hash-1", got.RequestHash)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.HTTPStatus)
	require.JSONEq(t, `{"success":true}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl), "ttl mismatch: expected %s, got %s", ttl, got.TTLAt)
}

func TestIdempotencyRepository_PostgresConflictAndHashMismatch(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	ttl := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing(ctx, "idem-conflict", "req-hash-a", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "idem-conflict", "req-hash-a", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	_, err = repo.CreateProcessing(ctx, "idem-conflict", "req-hash-b", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_PostgresExpiredKeyIsReclaimed(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "idem-reclaim", "h1", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	reclaimed, err := repo.CreateProcessing(ctx, "idem-reclaim", "h2", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "h2", reclaimed.RequestHash)
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, key := range []string{"idem-expired-1", "idem-expired-2", "idem-expired-3"} {
		_, err := repo.CreateProcessing(ctx, key, "h", now.Add(-time.Duration(5-i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "idem-active-1", "h4", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "idem-active-1")
	require.NoError(t, err)
}
