package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bizdir/internal/models"
)

// UpsertEnrichmentResult stores the latest fetch outcome for a business,
// overwriting any previous snapshot.
func (db *DB) UpsertEnrichmentResult(ctx context.Context, result *models.EnrichmentResult) error {
	hours, err := json.Marshal(result.Hours)
	if err != nil {
		return fmt.Errorf("encode hours: %w", err)
	}
	photoRefs, err := json.Marshal(result.PhotoRefs)
	if err != nil {
		return fmt.Errorf("encode photo refs: %w", err)
	}

	if result.FetchedAt.IsZero() {
		result.FetchedAt = time.Now()
	}

	query := `INSERT INTO enrichment_results (business_id, fetch_status, rating, rating_count, hours, photo_refs, place_id, fetched_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(business_id) DO UPDATE SET
                  fetch_status = excluded.fetch_status,
                  rating = excluded.rating,
                  rating_count = excluded.rating_count,
                  hours = excluded.hours,
                  photo_refs = excluded.photo_refs,
                  place_id = excluded.place_id,
                  fetched_at = excluded.fetched_at`

	_, err = db.ExecContext(ctx, query,
		result.BusinessID,
		result.FetchStatus,
		result.Rating,
		result.RatingCount,
		string(hours),
		string(photoRefs),
		result.PlaceID,
		result.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment result for business %d: %w", result.BusinessID, err)
	}
	return nil
}

// GetEnrichmentResult returns the stored snapshot for a business, or
// ErrNotFound when it was never enriched.
func (db *DB) GetEnrichmentResult(ctx context.Context, businessID int64) (*models.EnrichmentResult, error) {
	query := `SELECT business_id, fetch_status, rating, rating_count, hours, photo_refs, place_id, fetched_at
              FROM enrichment_results WHERE business_id = ?`

	var r models.EnrichmentResult
	var hours, photoRefs sql.NullString
	err := db.QueryRowContext(ctx, query, businessID).Scan(
		&r.BusinessID, &r.FetchStatus, &r.Rating, &r.RatingCount, &hours, &photoRefs, &r.PlaceID, &r.FetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrichment result for business %d: %w", businessID, err)
	}

	if hours.Valid && hours.String != "" && hours.String != "null" {
		if err := json.Unmarshal([]byte(hours.String), &r.Hours); err != nil {
			return nil, fmt.Errorf("decode hours: %w", err)
		}
	}
	if photoRefs.Valid && photoRefs.String != "" && photoRefs.String != "null" {
		if err := json.Unmarshal([]byte(photoRefs.String), &r.PhotoRefs); err != nil {
			return nil, fmt.Errorf("decode photo refs: %w", err)
		}
	}
	return &r, nil
}
