package service

import (
	"context"
	"time"

	"bizdir/internal/domain"
	"bizdir/internal/metrics"
	"bizdir/internal/models"

	"github.com/rs/zerolog"
)

// BudgetService owns the read side of the ledger: the current period's
// snapshot, created lazily with the configured cap.
type BudgetService struct {
	store  domain.LedgerStore
	cap    models.Cents
	logger *zerolog.Logger
}

func NewBudgetService(store domain.LedgerStore, cap models.Cents, logger *zerolog.Logger) *BudgetService {
	return &BudgetService{
		store:  store,
		cap:    cap,
		logger: logger,
	}
}

// CurrentPeriod returns the active accounting window, creating its ledger row
// on first touch so the cap from config always applies.
func (s *BudgetService) CurrentPeriod(ctx context.Context) (*models.BudgetPeriod, error) {
	key := models.PeriodKeyFor(time.Now())
	if err := s.store.EnsureBudgetPeriod(ctx, key, s.cap); err != nil {
		return nil, err
	}
	return s.store.GetBudgetPeriod(ctx, key)
}

// Status is the snapshot exposed over the API and metrics.
func (s *BudgetService) Status(ctx context.Context) (*models.BudgetStatus, error) {
	period, err := s.CurrentPeriod(ctx)
	if err != nil {
		return nil, err
	}

	status := &models.BudgetStatus{
		PeriodKey:    period.PeriodKey,
		SpentUSD:     period.SpentCents.USD(),
		RemainingUSD: period.Remaining().USD(),
		PercentUsed:  period.PercentUsed(),
		CapUSD:       period.CapCents.USD(),
	}

	metrics.SetBudget(status.SpentUSD, status.RemainingUSD)
	return status, nil
}
