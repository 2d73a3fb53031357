package repository

import (
	"context"
	"sync/atomic"
	"time"

	"bizdir/internal/domain"
	"bizdir/internal/models"

	"github.com/rs/zerolog"
)

// FailoverResultCache prefers the primary (Redis) cache and degrades to the
// in-memory fallback when it errors, probing the primary again after a
// cooldown.
type FailoverResultCache struct {
	primary   domain.ResultCache
	fallback  domain.ResultCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last failed probe
}

func NewFailoverResultCache(primary, fallback domain.ResultCache, logger *zerolog.Logger) *FailoverResultCache {
	return &FailoverResultCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

const failoverRetryAfter = time.Minute

func (r *FailoverResultCache) GetResult(ctx context.Context, businessID int64) (*models.EnrichmentResult, error) {
	if !r.isDown.Load() {
		result, err := r.primary.GetResult(ctx, businessID)
		if err == nil {
			return result, nil
		}
		r.logger.Error().Err(err).Msg("primary result cache failed, falling back to memory")
		r.markDown()
	}

	if r.shouldProbe() {
		result, err := r.primary.GetResult(ctx, businessID)
		if err == nil {
			r.isDown.Store(false)
			return result, nil
		}
		r.markDown()
	}

	return r.fallback.GetResult(ctx, businessID)
}

func (r *FailoverResultCache) SetResult(ctx context.Context, result *models.EnrichmentResult) error {
	if !r.isDown.Load() {
		if err := r.primary.SetResult(ctx, result); err == nil {
			return nil
		} else {
			r.logger.Error().Err(err).Msg("primary result cache failed, falling back to memory")
			r.markDown()
		}
	}
	return r.fallback.SetResult(ctx, result)
}

func (r *FailoverResultCache) InvalidateResult(ctx context.Context, businessID int64) error {
	// Invalidate both sides; a stale fallback entry would otherwise survive a
	// primary recovery.
	if !r.isDown.Load() {
		if err := r.primary.InvalidateResult(ctx, businessID); err != nil {
			r.logger.Error().Err(err).Msg("primary result cache invalidate failed")
			r.markDown()
		}
	}
	return r.fallback.InvalidateResult(ctx, businessID)
}

func (r *FailoverResultCache) markDown() {
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverResultCache) shouldProbe() bool {
	if !r.isDown.Load() {
		return false
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > failoverRetryAfter
}
