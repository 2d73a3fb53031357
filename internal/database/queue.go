package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizdir/internal/models"
)

// Enqueue admits an enrichment request for a business. It is a no-op when a
// pending or processing entry already exists for that business: the insert is
// a single conditional statement, so concurrent callers cannot race a
// duplicate in. Returns true when a new entry was created.
func (db *DB) Enqueue(ctx context.Context, businessID int64, reason string, priorityHint *int64) (bool, error) {
	if businessID <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidBusinessID, businessID)
	}
	if !models.ValidReason(reason) {
		return false, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	priority := models.DefaultPriority(reason)
	if priorityHint != nil {
		priority = *priorityHint
	}

	now := time.Now()
	query := `INSERT INTO enrichment_queue (business_id, reason, priority, status, attempts, enqueued_at, updated_at)
              SELECT ?, ?, ?, 'pending', 0, ?, ?
              WHERE NOT EXISTS (
                  SELECT 1 FROM enrichment_queue
                  WHERE business_id = ? AND status IN ('pending', 'processing')
              )`

	result, err := db.ExecContext(ctx, query, businessID, reason, priority, now, now, businessID)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue business %d: %w", businessID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// ClaimBatch selects up to limit pending entries in priority-then-FIFO order
// and transitions each to processing inside one transaction. The conditional
// per-row update is the mutual-exclusion point: two concurrent drains never
// claim the same entry.
func (db *DB) ClaimBatch(ctx context.Context, limit int) ([]models.QueueEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	query := `SELECT id, business_id, reason, priority, status, attempts, last_error, enqueued_at, updated_at, next_attempt_at
              FROM enrichment_queue
              WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
              ORDER BY priority DESC, enqueued_at ASC
              LIMIT ?`

	rows, err := tx.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending entries: %w", err)
	}

	candidates, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	var claimed []models.QueueEntry
	for i := range candidates {
		res, err := tx.ExecContext(ctx,
			`UPDATE enrichment_queue SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`,
			now, candidates[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim entry %d: %w", candidates[i].ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 1 {
			candidates[i].Status = models.QueueStatusProcessing
			candidates[i].UpdatedAt = now
			claimed = append(claimed, candidates[i])
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return claimed, nil
}

// MarkDone moves a processed entry to its terminal success state.
func (db *DB) MarkDone(ctx context.Context, id int64) error {
	query := `UPDATE enrichment_queue
              SET status = 'done', last_error = NULL, next_attempt_at = NULL, updated_at = ?
              WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark entry %d done: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed attempt. A permanent cause, or reaching the
// attempt ceiling, makes the entry terminal; otherwise it returns to pending
// with an optional retry delay. Returns the resulting status.
func (db *DB) MarkFailed(ctx context.Context, id int64, cause string, permanent bool, maxAttempts int, nextAttemptAt *time.Time) (string, error) {
	query := `UPDATE enrichment_queue
              SET attempts = attempts + 1,
                  last_error = ?,
                  status = CASE WHEN ? OR attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
                  next_attempt_at = CASE WHEN ? OR attempts + 1 >= ? THEN NULL ELSE ? END,
                  updated_at = ?
              WHERE id = ? AND status = 'processing'`

	res, err := db.ExecContext(ctx, query, cause, permanent, maxAttempts, permanent, maxAttempts, nextAttemptAt, time.Now(), id)
	if err != nil {
		return "", fmt.Errorf("failed to mark entry %d failed: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return "", fmt.Errorf("mark failed entry %d: %w", id, ErrNotFound)
	}

	var status string
	if err := db.QueryRowContext(ctx, `SELECT status FROM enrichment_queue WHERE id = ?`, id).Scan(&status); err != nil {
		return "", fmt.Errorf("failed to read entry %d status: %w", id, err)
	}
	return status, nil
}

// Release returns claimed-but-unprocessed entries to pending untouched.
// Used when the processor stops a batch early (budget exhausted, provider
// rate-limited) so nothing is stranded in processing.
func (db *DB) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE enrichment_queue SET status = 'pending', updated_at = ? WHERE id IN (%s) AND status = 'processing'`,
		placeholders,
	)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to release entries: %w", err)
	}
	return nil
}

// ReclaimStale returns entries stuck in processing past the staleness window
// to pending. Guards against a crashed processor run leaving claims behind.
func (db *DB) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := db.ExecContext(ctx,
		`UPDATE enrichment_queue SET status = 'pending', updated_at = ? WHERE status = 'processing' AND updated_at <= ?`,
		time.Now(), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// QueueStats counts entries by status. Pure read, used for observability.
func (db *DB) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM enrichment_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		switch status {
		case models.QueueStatusPending:
			stats.Pending = count
		case models.QueueStatusProcessing:
			stats.Processing = count
		case models.QueueStatusDone:
			stats.Done = count
		case models.QueueStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetFailedEntries lists terminal failures, newest first, for the operator
// report.
func (db *DB) GetFailedEntries(ctx context.Context) ([]models.QueueEntry, error) {
	query := `SELECT id, business_id, reason, priority, status, attempts, last_error, enqueued_at, updated_at, next_attempt_at
              FROM enrichment_queue WHERE status = 'failed' ORDER BY updated_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed entries: %w", err)
	}
	return scanEntries(rows)
}

// GetActiveEntryForBusiness returns the non-terminal entry for a business,
// or ErrNotFound.
func (db *DB) GetActiveEntryForBusiness(ctx context.Context, businessID int64) (*models.QueueEntry, error) {
	query := `SELECT id, business_id, reason, priority, status, attempts, last_error, enqueued_at, updated_at, next_attempt_at
              FROM enrichment_queue WHERE business_id = ? AND status IN ('pending', 'processing')`

	var e models.QueueEntry
	err := db.QueryRowContext(ctx, query, businessID).Scan(
		&e.ID, &e.BusinessID, &e.Reason, &e.Priority, &e.Status, &e.Attempts, &e.LastError, &e.EnqueuedAt, &e.UpdatedAt, &e.NextAttemptAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active entry for business %d: %w", businessID, err)
	}
	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]models.QueueEntry, error) {
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		err := rows.Scan(
			&e.ID, &e.BusinessID, &e.Reason, &e.Priority, &e.Status, &e.Attempts, &e.LastError, &e.EnqueuedAt, &e.UpdatedAt, &e.NextAttemptAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
