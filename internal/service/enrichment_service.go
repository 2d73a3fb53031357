package service

import (
	"context"
	"fmt"

	"bizdir/internal/database"
	"bizdir/internal/domain"
	"bizdir/internal/events"
	"bizdir/internal/metrics"
	"bizdir/internal/models"

	"github.com/rs/zerolog"
)

// EnrichmentService validates and admits enrichment requests, and serves the
// read side (stats, cached results, failure listings).
type EnrichmentService struct {
	store    domain.Store
	cache    domain.ResultCache
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewEnrichmentService(store domain.Store, cache domain.ResultCache, eventBus domain.EventPublisher, logger *zerolog.Logger) *EnrichmentService {
	return &EnrichmentService{
		store:    store,
		cache:    cache,
		eventBus: eventBus,
		logger:   logger,
	}
}

// RequestEnrichment admits a request for a business. Returns false without
// error when an active entry already exists (dedup is a no-op outcome, not a
// failure).
func (s *EnrichmentService) RequestEnrichment(ctx context.Context, businessID int64, reason string, priorityHint *int64) (bool, error) {
	if !models.ValidReason(reason) {
		return false, fmt.Errorf("%w: %q", database.ErrInvalidReason, reason)
	}
	if businessID <= 0 {
		return false, fmt.Errorf("%w: %d", database.ErrInvalidBusinessID, businessID)
	}

	// The queue stores only the id; make sure it points at a real record
	// before accepting work for it.
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return false, err
	}

	enqueued, err := s.store.Enqueue(ctx, businessID, reason, priorityHint)
	if err != nil {
		return false, err
	}

	if enqueued {
		metrics.IncEnqueued(reason)
		if s.eventBus != nil {
			_ = s.eventBus.PublishJSON(events.EventEnrichmentEnqueued, events.EnrichmentEventPayload{
				BusinessID: businessID,
				Reason:     reason,
				Status:     models.QueueStatusPending,
			})
		}
		s.logger.Info().Int64("business_id", businessID).Str("reason", reason).Msg("enrichment enqueued")
	} else {
		s.logger.Debug().Int64("business_id", businessID).Str("reason", reason).Msg("enrichment already queued")
	}

	return enqueued, nil
}

// Stats returns queue counts by status.
func (s *EnrichmentService) Stats(ctx context.Context) (*models.QueueStats, error) {
	return s.store.QueueStats(ctx)
}

// Result reads a business's enrichment snapshot, cache first.
func (s *EnrichmentService) Result(ctx context.Context, businessID int64) (*models.EnrichmentResult, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetResult(ctx, businessID); err == nil && cached != nil {
			return cached, nil
		}
	}

	result, err := s.store.GetEnrichmentResult(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetResult(ctx, result); err != nil {
			s.logger.Warn().Err(err).Int64("business_id", businessID).Msg("result cache write failed")
		}
	}
	return result, nil
}

// FailedEntries lists terminal failures for the operator report.
func (s *EnrichmentService) FailedEntries(ctx context.Context) ([]models.QueueEntry, error) {
	return s.store.GetFailedEntries(ctx)
}
