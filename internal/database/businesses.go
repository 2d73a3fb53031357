package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bizdir/internal/models"
)

// UpsertBusiness writes a record with a caller-assigned id. Used by the seed
// loader, which owns the id space of the business list.
func (db *DB) UpsertBusiness(ctx context.Context, business *models.Business) error {
	now := time.Now()
	query := `INSERT INTO businesses (id, name, address, category, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  address = excluded.address,
                  category = excluded.category,
                  updated_at = excluded.updated_at`

	if _, err := db.ExecContext(ctx, query, business.ID, business.Name, business.Address, business.Category, now, now); err != nil {
		return fmt.Errorf("failed to upsert business %d: %w", business.ID, err)
	}
	return nil
}

// GetBusiness returns one record or ErrBusinessNotFound.
func (db *DB) GetBusiness(ctx context.Context, id int64) (*models.Business, error) {
	query := `SELECT id, name, address, category, created_at, updated_at FROM businesses WHERE id = ?`

	var b models.Business
	err := db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Name, &b.Address, &b.Category, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business %d: %w", id, err)
	}
	return &b, nil
}

// ListBusinesses returns all records ordered by id.
func (db *DB) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, address, category, created_at, updated_at FROM businesses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	var businesses []models.Business
	for rows.Next() {
		var b models.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Category, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, b)
	}
	return businesses, rows.Err()
}
