package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestIdempotencyRepository_CreateGetAndFinish(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	ttl := time.Now().UTC().Add(2 * time.Hour)

	created, err := repo.CreateProcessing(ctx, " order-key ", "hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, "order-key", created.Key)
	require.Equal(t, domain.IdempotencyStatusProcessing, created.Status)
	require.False(t, created.Completed())

	require.NoError(t, repo.MarkDone(ctx, "order-key", []byte(`{"id":1}`), 201))

	got, err := repo.Get(ctx, "order-key")
	require.NoError(t, err)
	require.True(t, got.Completed())
	require.Equal(t, 201, got.HTTPStatus)
	require.JSONEq(t, `{"id":1}`, string(got.ResponseBody))
	require.True(t, got.TTLAt.Equal(ttl))

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_CreateProcessingErrors(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "k", "hash-a", ttl)
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
		hash string
		want error
	}{
		{name: "empty key", key: " ", hash: "h", want: domain.ErrIdempotencyKeyRequired},
		{name: "empty hash", key: "k2", hash: "", want: domain.ErrIdempotencyHashRequired},
		{name: "same request", key: "k", hash: "hash-a", want: domain.ErrIdempotencyKeyAlreadyExists},
		{name: "different request", key: "k", hash: "hash-b", want: domain.ErrIdempotencyHashMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.CreateProcessing(ctx, tc.key, tc.hash, ttl)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestIdempotencyRepository_ExpiredKeyIsReusable(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "k", "hash-a", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	reused, err := repo.CreateProcessing(ctx, "k", "hash-b", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "hash-b", reused.RequestHash)
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.CreateProcessing(ctx, key, "h", now.Add(-time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "fresh", "h", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "fresh")
	require.NoError(t, err)
}
