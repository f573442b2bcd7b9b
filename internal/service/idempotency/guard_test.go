package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orders-api/internal/domain"
	"github.com/vladislavdragonenkov/orders-api/internal/storage/memory"
)

func TestRequestHash(t *testing.T) {
	a := RequestHash(http.MethodPost, "/api/v1/orders", []byte(`{"orderNumber":"A"}`))
	b := RequestHash(http.MethodPost, "/api/v1/orders", []byte(`{"orderNumber":"B"}`))
	c := RequestHash(http.MethodPost, "/api/v1/products", []byte(`{"orderNumber":"A"}`))

	assert.Len(t, a, 64)
	assert.Equal(t, a, RequestHash(http.MethodPost, "/api/v1/orders", []byte(`{"orderNumber":"A"}`)))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGuard_Lifecycle(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyRepository(), time.Hour)
	ctx := context.Background()

	_, replay, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	assert.False(t, replay)

	_, _, err = guard.Begin(ctx, "key-1", "hash-1")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists, "in-flight key is a conflict")

	require.NoError(t, guard.Complete(ctx, "key-1", http.StatusCreated, []byte(`{"success":true}`)))

	record, replay, err := guard.Begin(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	assert.True(t, replay)
	assert.Equal(t, http.StatusCreated, record.HTTPStatus)
	assert.JSONEq(t, `{"success":true}`, string(record.ResponseBody))

	_, _, err = guard.Begin(ctx, "key-1", "hash-2")
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestGuard_ServerErrorsAreStoredAsFailed(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	guard := NewGuard(repo, 0)
	ctx := context.Background()

	_, _, err := guard.Begin(ctx, "key-500", "hash")
	require.NoError(t, err)
	require.NoError(t, guard.Complete(ctx, "key-500", http.StatusInternalServerError, []byte(`{}`)))

	record, err := repo.Get(ctx, "key-500")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), record.TTLAt, time.Minute)
}

func TestGuard_ValidatesInput(t *testing.T) {
	guard := NewGuard(memory.NewIdempotencyRepository(), time.Hour)

	_, _, err := guard.Begin(context.Background(), "  ", "hash")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}
