package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bizdir/internal/models"
)

// EnsureBudgetPeriod creates the ledger row for a period if missing and
// refreshes its cap from config. Spend is never touched here.
func (db *DB) EnsureBudgetPeriod(ctx context.Context, periodKey string, cap models.Cents) error {
	query := `INSERT INTO budget_ledger (period_key, spent_cents, cap_cents, updated_at)
              VALUES (?, 0, ?, ?)
              ON CONFLICT(period_key) DO UPDATE SET
                  cap_cents = excluded.cap_cents,
                  updated_at = excluded.updated_at`

	if _, err := db.ExecContext(ctx, query, periodKey, int64(cap), time.Now()); err != nil {
		return fmt.Errorf("failed to ensure budget period %s: %w", periodKey, err)
	}
	return nil
}

// GetBudgetPeriod reads one accounting window.
func (db *DB) GetBudgetPeriod(ctx context.Context, periodKey string) (*models.BudgetPeriod, error) {
	query := `SELECT period_key, spent_cents, cap_cents, updated_at FROM budget_ledger WHERE period_key = ?`

	var p models.BudgetPeriod
	var spent, cap int64
	err := db.QueryRowContext(ctx, query, periodKey).Scan(&p.PeriodKey, &spent, &cap, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget period %s: %w", periodKey, err)
	}
	p.SpentCents = models.Cents(spent)
	p.CapCents = models.Cents(cap)
	return &p, nil
}

// CommitSpend adds a confirmed billable call's cost to the period. The
// increment runs server-side, so overlapping commits never lose updates.
func (db *DB) CommitSpend(ctx context.Context, periodKey string, cost models.Cents) error {
	res, err := db.ExecContext(ctx,
		`UPDATE budget_ledger SET spent_cents = spent_cents + ?, updated_at = ? WHERE period_key = ?`,
		int64(cost), time.Now(), periodKey,
	)
	if err != nil {
		return fmt.Errorf("failed to commit spend for %s: %w", periodKey, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("commit spend for %s: %w", periodKey, ErrNotFound)
	}
	return nil
}
