package repository

import (
	"context"
	"testing"
	"time"

	"bizdir/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryResultCache(t *testing.T) {
	cache := NewMemoryResultCache(time.Hour)
	ctx := context.Background()

	got, err := cache.GetResult(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	result := &models.EnrichmentResult{BusinessID: 1, FetchStatus: models.FetchStatusOK, Rating: 4.0}
	require.NoError(t, cache.SetResult(ctx, result))

	got, err = cache.GetResult(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4.0, got.Rating)

	require.NoError(t, cache.InvalidateResult(ctx, 1))

	got, err = cache.GetResult(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryResultCacheExpiry(t *testing.T) {
	cache := NewMemoryResultCache(time.Millisecond)
	ctx := context.Background()

	result := &models.EnrichmentResult{BusinessID: 2, FetchStatus: models.FetchStatusOK}
	require.NoError(t, cache.SetResult(ctx, result))

	time.Sleep(5 * time.Millisecond)

	got, err := cache.GetResult(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRunLock(t *testing.T) {
	lock := NewMemoryRunLock()
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, lock.Unlock(ctx))

	acquired, err = lock.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryRunLockTTLExpiry(t *testing.T) {
	lock := NewMemoryRunLock()
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, acquired)

	time.Sleep(5 * time.Millisecond)

	// Expired lock is re-acquirable without an explicit unlock
	acquired, err = lock.TryLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}
