package domain

import (
	"context"
	"time"

	"bizdir/internal/models"
)

// Store is the durable state behind the queue, ledger, results, and the
// business directory. Implemented by internal/database.
type Store interface {
	QueueStore
	LedgerStore
	ResultStore
	BusinessStore

	PingContext(ctx context.Context) error
}

type QueueStore interface {
	Enqueue(ctx context.Context, businessID int64, reason string, priorityHint *int64) (bool, error)
	ClaimBatch(ctx context.Context, limit int) ([]models.QueueEntry, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause string, permanent bool, maxAttempts int, nextAttemptAt *time.Time) (string, error)
	Release(ctx context.Context, ids []int64) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
	QueueStats(ctx context.Context) (*models.QueueStats, error)
	GetFailedEntries(ctx context.Context) ([]models.QueueEntry, error)
	GetActiveEntryForBusiness(ctx context.Context, businessID int64) (*models.QueueEntry, error)
}

type LedgerStore interface {
	EnsureBudgetPeriod(ctx context.Context, periodKey string, cap models.Cents) error
	GetBudgetPeriod(ctx context.Context, periodKey string) (*models.BudgetPeriod, error)
	CommitSpend(ctx context.Context, periodKey string, cost models.Cents) error
}

type ResultStore interface {
	UpsertEnrichmentResult(ctx context.Context, result *models.EnrichmentResult) error
	GetEnrichmentResult(ctx context.Context, businessID int64) (*models.EnrichmentResult, error)
}

type BusinessStore interface {
	UpsertBusiness(ctx context.Context, business *models.Business) error
	GetBusiness(ctx context.Context, id int64) (*models.Business, error)
}

// ResultCache fronts enrichment-result reads for the API.
type ResultCache interface {
	GetResult(ctx context.Context, businessID int64) (*models.EnrichmentResult, error)
	SetResult(ctx context.Context, result *models.EnrichmentResult) error
	InvalidateResult(ctx context.Context, businessID int64) error
}

// RunLocker serializes processor drains across instances.
type RunLocker interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
