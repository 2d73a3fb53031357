package repository

import (
	"context"
	"sync"
	"time"

	"bizdir/internal/models"
)

// MemoryResultCache is the fallback cache when Redis is unavailable.
type MemoryResultCache struct {
	results sync.Map
	ttl     time.Duration
}

type cachedResult struct {
	result    *models.EnrichmentResult
	expiresAt time.Time
}

func NewMemoryResultCache(ttl time.Duration) *MemoryResultCache {
	return &MemoryResultCache{ttl: ttl}
}

func (r *MemoryResultCache) GetResult(ctx context.Context, businessID int64) (*models.EnrichmentResult, error) {
	val, ok := r.results.Load(businessID)
	if !ok {
		return nil, nil
	}
	entry := val.(*cachedResult)
	if r.ttl > 0 && time.Now().After(entry.expiresAt) {
		r.results.Delete(businessID)
		return nil, nil
	}
	return entry.result, nil
}

func (r *MemoryResultCache) SetResult(ctx context.Context, result *models.EnrichmentResult) error {
	r.results.Store(result.BusinessID, &cachedResult{
		result:    result,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryResultCache) InvalidateResult(ctx context.Context, businessID int64) error {
	r.results.Delete(businessID)
	return nil
}

// MemoryRunLock is the single-process fallback for the processor run lock.
type MemoryRunLock struct {
	mu        sync.Mutex
	locked    bool
	expiresAt time.Time
}

func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{}
}

func (l *MemoryRunLock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked && time.Now().Before(l.expiresAt) {
		return false, nil
	}
	l.locked = true
	l.expiresAt = time.Now().Add(ttl)
	return true, nil
}

func (l *MemoryRunLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = false
	return nil
}
