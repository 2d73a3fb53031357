package models

import "time"

type QueueEntry struct {
	ID            int64      `json:"id"`
	BusinessID    int64      `json:"business_id"`
	Reason        string     `json:"reason"` // seed, traffic, user_click
	Priority      int64      `json:"priority"`
	Status        string     `json:"status"` // pending, processing, done, failed
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// IsTerminal reports whether the entry can no longer transition.
func (e *QueueEntry) IsTerminal() bool {
	return e.Status == QueueStatusDone || e.Status == QueueStatusFailed
}

type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
}
