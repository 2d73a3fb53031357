package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bizdir/internal/database"
	"bizdir/internal/domain"
	"bizdir/internal/events"
	"bizdir/internal/metrics"
	"bizdir/internal/models"
	"bizdir/internal/places"

	"github.com/rs/zerolog"
)

// Report aggregates one drain's counts. Entries released back to pending for
// budget or provider-throttle reasons are not counted as processed.
type Report struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Released  int `json:"released"`
}

// Processor drains the enrichment queue under the period budget. Designed to
// run as a single active instance per invocation; the claim step and the
// ledger increment carry the store-level atomicity, so an overlapping run can
// at worst overshoot the cap by one call's cost.
type Processor struct {
	store       domain.Store
	places      places.Client
	eventBus    domain.EventPublisher
	costPerCall models.Cents
	cap         models.Cents
	maxAttempts int
	warnPercent float64
	retry       RetryPolicy
	callTimeout time.Duration
	logger      zerolog.Logger
}

type ProcessorOptions struct {
	CostPerCall models.Cents
	MonthlyCap  models.Cents
	MaxAttempts int
	// WarnPercent is the spend level, as a percentage of the cap, at which a
	// budget_threshold event is published.
	WarnPercent float64
	Retry       RetryPolicy
	CallTimeout time.Duration
}

func NewProcessor(store domain.Store, placesClient places.Client, eventBus domain.EventPublisher, opts ProcessorOptions, logger *zerolog.Logger) *Processor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = models.DefaultMaxAttempts
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.WarnPercent <= 0 {
		opts.WarnPercent = models.DefaultBudgetWarnPercent
	}

	return &Processor{
		store:       store,
		places:      placesClient,
		eventBus:    eventBus,
		costPerCall: opts.CostPerCall,
		cap:         opts.MonthlyCap,
		maxAttempts: opts.MaxAttempts,
		warnPercent: opts.WarnPercent,
		retry:       opts.Retry,
		callTimeout: opts.CallTimeout,
		logger:      logger.With().Str("component", "processor").Logger(),
	}
}

// ProcessQueue claims up to batchSize entries and works through them in
// priority order, consulting the running budget before every billable call.
// Per-item failures never abort the batch; store and ledger errors do.
func (p *Processor) ProcessQueue(ctx context.Context, batchSize int) (Report, error) {
	var report Report

	if batchSize <= 0 {
		batchSize = models.DefaultBatchSize
	}

	periodKey := models.PeriodKeyFor(time.Now())
	if err := p.store.EnsureBudgetPeriod(ctx, periodKey, p.cap); err != nil {
		return report, fmt.Errorf("ensure budget period: %w", err)
	}
	period, err := p.store.GetBudgetPeriod(ctx, periodKey)
	if err != nil {
		return report, fmt.Errorf("read budget period: %w", err)
	}

	remaining := period.Remaining()
	if remaining <= 0 {
		p.logger.Warn().Str("period", periodKey).Str("spent", period.SpentCents.String()).Msg("budget exhausted, skipping drain")
		return report, nil
	}

	entries, err := p.store.ClaimBatch(ctx, batchSize)
	if err != nil {
		return report, fmt.Errorf("claim batch: %w", err)
	}
	if len(entries) == 0 {
		return report, nil
	}

	for i := range entries {
		entry := &entries[i]

		if remaining < p.costPerCall {
			// Money ran out mid-batch: hand the rest back untouched so the
			// next period's run picks them up.
			if err := p.releaseFrom(ctx, entries[i:], &report); err != nil {
				return report, err
			}
			p.logger.Warn().Str("period", periodKey).Int("released", report.Released).Msg("budget exhausted mid-batch")
			break
		}

		outcome, err := p.processEntry(ctx, entry, periodKey)
		if err != nil {
			return report, err
		}

		switch outcome {
		case outcomeDone:
			before := p.percentUsed(remaining)
			remaining -= p.costPerCall
			if after := p.percentUsed(remaining); before < p.warnPercent && after >= p.warnPercent {
				p.publishBudgetThreshold(periodKey, remaining, after)
			}
			report.Processed++
			report.Succeeded++
		case outcomeRetry, outcomeFailed:
			report.Processed++
			report.Failed++
		case outcomeStopBatch:
			report.Processed++
			report.Failed++
			if err := p.releaseFrom(ctx, entries[i+1:], &report); err != nil {
				return report, err
			}
			p.logger.Warn().Int("released", report.Released).Msg("provider rate limited, abandoning batch")
			return report, nil
		}
	}

	return report, nil
}

func (p *Processor) percentUsed(remaining models.Cents) float64 {
	if p.cap <= 0 {
		return 0
	}
	return float64(p.cap-remaining) / float64(p.cap) * 100
}

// publishBudgetThreshold fires once per drain, the moment confirmed spend
// crosses the warning level.
func (p *Processor) publishBudgetThreshold(periodKey string, remaining models.Cents, percentUsed float64) {
	spent := p.cap - remaining
	p.logger.Warn().
		Str("period", periodKey).
		Str("spent", spent.String()).
		Float64("percent_used", percentUsed).
		Msg("budget warning threshold crossed")

	if p.eventBus == nil {
		return
	}
	_ = p.eventBus.PublishJSON(events.EventBudgetThreshold, events.BudgetEventPayload{
		PeriodKey:   periodKey,
		SpentUSD:    spent.USD(),
		CapUSD:      p.cap.USD(),
		PercentUsed: percentUsed,
	})
}

type entryOutcome int

const (
	outcomeDone entryOutcome = iota
	outcomeRetry
	outcomeFailed
	outcomeStopBatch
)

func (p *Processor) processEntry(ctx context.Context, entry *models.QueueEntry, periodKey string) (entryOutcome, error) {
	business, err := p.store.GetBusiness(ctx, entry.BusinessID)
	if errors.Is(err, database.ErrBusinessNotFound) {
		// The directory record is gone; retrying can never succeed.
		return p.fail(ctx, entry, "business no longer exists", true, false)
	}
	if err != nil {
		return 0, fmt.Errorf("load business %d: %w", entry.BusinessID, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	details, fetchErr := p.places.FetchPlaceDetails(callCtx, business.PlaceQuery())
	cancel()

	switch {
	case fetchErr == nil:
		return p.succeed(ctx, entry, details, periodKey)

	case errors.Is(fetchErr, places.ErrNotFound):
		// Not billed by the provider; record the miss so presentation code
		// stops asking.
		result := &models.EnrichmentResult{
			BusinessID:  entry.BusinessID,
			FetchStatus: models.FetchStatusNotFound,
			FetchedAt:   time.Now(),
		}
		if err := p.store.UpsertEnrichmentResult(ctx, result); err != nil {
			return 0, fmt.Errorf("persist not_found result: %w", err)
		}
		return p.fail(ctx, entry, fetchErr.Error(), true, true)

	case errors.Is(fetchErr, places.ErrRateLimited):
		if _, err := p.fail(ctx, entry, fetchErr.Error(), false, false); err != nil {
			return 0, err
		}
		return outcomeStopBatch, nil

	default:
		// Timeouts, 5xx, decode garbage: transient by classification.
		return p.fail(ctx, entry, fetchErr.Error(), false, false)
	}
}

func (p *Processor) succeed(ctx context.Context, entry *models.QueueEntry, details *places.Details, periodKey string) (entryOutcome, error) {
	result := &models.EnrichmentResult{
		BusinessID:  entry.BusinessID,
		FetchStatus: models.FetchStatusOK,
		Rating:      details.Rating,
		RatingCount: details.RatingCount,
		Hours:       details.Hours,
		PhotoRefs:   details.PhotoRefs,
		PlaceID:     details.PlaceID,
		FetchedAt:   time.Now(),
	}
	if err := p.store.UpsertEnrichmentResult(ctx, result); err != nil {
		return 0, fmt.Errorf("persist result for business %d: %w", entry.BusinessID, err)
	}

	// Commit only after the call confirmed billable and the result landed.
	if err := p.store.CommitSpend(ctx, periodKey, p.costPerCall); err != nil {
		return 0, fmt.Errorf("commit spend: %w", err)
	}

	if err := p.store.MarkDone(ctx, entry.ID); err != nil {
		return 0, fmt.Errorf("mark done entry %d: %w", entry.ID, err)
	}

	metrics.IncProcessed("done")
	if p.eventBus != nil {
		_ = p.eventBus.PublishJSON(events.EventEnrichmentCompleted, events.EnrichmentEventPayload{
			EntryID:    entry.ID,
			BusinessID: entry.BusinessID,
			Reason:     entry.Reason,
			Status:     models.QueueStatusDone,
			Attempts:   entry.Attempts + 1,
		})
	}
	p.logger.Info().Int64("entry_id", entry.ID).Int64("business_id", entry.BusinessID).Msg("enrichment completed")
	return outcomeDone, nil
}

func (p *Processor) fail(ctx context.Context, entry *models.QueueEntry, cause string, permanent, resultWritten bool) (entryOutcome, error) {
	status, err := p.store.MarkFailed(ctx, entry.ID, cause, permanent, p.maxAttempts, p.retry.NextAttemptAt(entry.Attempts+1))
	if err != nil {
		return 0, fmt.Errorf("mark failed entry %d: %w", entry.ID, err)
	}

	if status == models.QueueStatusFailed {
		// Terminal: record the failure snapshot unless the not_found path
		// already wrote one.
		if !resultWritten {
			result := &models.EnrichmentResult{
				BusinessID:  entry.BusinessID,
				FetchStatus: models.FetchStatusError,
				FetchedAt:   time.Now(),
			}
			if err := p.store.UpsertEnrichmentResult(ctx, result); err != nil {
				p.logger.Error().Err(err).Int64("business_id", entry.BusinessID).Msg("persist failure result")
			}
		}

		metrics.IncProcessed("failed")
		if p.eventBus != nil {
			_ = p.eventBus.PublishJSON(events.EventEnrichmentFailed, events.EnrichmentEventPayload{
				EntryID:    entry.ID,
				BusinessID: entry.BusinessID,
				Reason:     entry.Reason,
				Status:     models.QueueStatusFailed,
				Attempts:   entry.Attempts + 1,
				LastError:  cause,
			})
		}
		p.logger.Warn().Int64("entry_id", entry.ID).Int64("business_id", entry.BusinessID).Str("cause", cause).Msg("enrichment failed permanently")
		return outcomeFailed, nil
	}

	metrics.IncProcessed("retry")
	p.logger.Info().Int64("entry_id", entry.ID).Int64("business_id", entry.BusinessID).Str("cause", cause).Msg("enrichment attempt failed, re-queued")
	return outcomeRetry, nil
}

func (p *Processor) releaseFrom(ctx context.Context, rest []models.QueueEntry, report *Report) error {
	if len(rest) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(rest))
	for i := range rest {
		ids = append(ids, rest[i].ID)
	}
	if err := p.store.Release(ctx, ids); err != nil {
		return fmt.Errorf("release claimed entries: %w", err)
	}
	report.Released += len(ids)
	for range ids {
		metrics.IncProcessed("released")
	}
	return nil
}
