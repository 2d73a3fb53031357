package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidReason rejects an enqueue with a reason outside the closed set.
	ErrInvalidReason = errors.New("invalid enrichment reason")

	// ErrInvalidBusinessID rejects an enqueue with a missing or non-positive id.
	ErrInvalidBusinessID = errors.New("invalid business id")

	// ErrBusinessNotFound means the referenced business row does not exist.
	ErrBusinessNotFound = errors.New("business not found")

	// ErrNotFound is the generic missing-row error for reads.
	ErrNotFound = errors.New("not found")
)

type DB struct {
	*sql.DB
	log zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %v", err)
		}
		// Immediate transactions take the write lock up front, so concurrent
		// claimers queue on the busy timeout instead of failing mid-upgrade.
		dsn = "file:" + path + "?_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("path", path).Msg("database initialized")

	return &DB{DB: db, log: log}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            address TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS enrichment_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            business_id INTEGER NOT NULL,
            reason TEXT NOT NULL,
            priority INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'pending',
            attempts INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            enqueued_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            next_attempt_at DATETIME
        )`,

		`CREATE TABLE IF NOT EXISTS budget_ledger (
            period_key TEXT PRIMARY KEY,
            spent_cents INTEGER NOT NULL DEFAULT 0,
            cap_cents INTEGER NOT NULL DEFAULT 0,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS enrichment_results (
            business_id INTEGER PRIMARY KEY,
            fetch_status TEXT NOT NULL,
            rating REAL NOT NULL DEFAULT 0,
            rating_count INTEGER NOT NULL DEFAULT 0,
            hours TEXT,
            photo_refs TEXT,
            place_id TEXT NOT NULL DEFAULT '',
            fetched_at DATETIME NOT NULL
        )`,

		// One active (pending/processing) entry per business; terminal rows
		// stay behind for audit and never collide with a fresh enqueue.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_active_business
            ON enrichment_queue(business_id)
            WHERE status IN ('pending', 'processing')`,

		`CREATE INDEX IF NOT EXISTS idx_queue_claim
            ON enrichment_queue(status, priority DESC, enqueued_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_business ON enrichment_queue(business_id)`,
		`CREATE INDEX IF NOT EXISTS idx_businesses_name ON businesses(name)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}
