package storage_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/observability"
	"solana-token-feed/internal/storage"
	"solana-token-feed/internal/storage/memory"
)

func TestInstrumented_DelegatesAndCounts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInstrumented(memory.NewSnapshotStore(), "instrumented_test")

	errs := func(op string) float64 {
		return testutil.ToFloat64(observability.DefaultMetrics.StoreErrors.WithLabelValues("instrumented_test", op))
	}

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0.0, errs("get"), "not found is not an error")

	require.NoError(t, store.Put(ctx, &domain.TokenSnapshot{Address: "T1", Metrics: domain.Metrics{Volume: domain.Float(1)}}))
	assert.ErrorIs(t, store.Put(ctx, &domain.TokenSnapshot{}), storage.ErrInvalidInput)
	assert.Equal(t, 1.0, errs("put"))

	addrs, err := store.Range(ctx, domain.SortVolume, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, addrs)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	snaps, err := store.GetMany(ctx, []string{"T1"})
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
	require.NoError(t, store.Ping(ctx))
}

func TestValidateRange(t *testing.T) {
	off, lim, err := storage.ValidateRange(domain.SortLiquidity, -5, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
	assert.Equal(t, 0, lim)

	_, _, err = storage.ValidateRange("price", 0, 10)
	assert.ErrorIs(t, err, storage.ErrUnknownMetric)
}
