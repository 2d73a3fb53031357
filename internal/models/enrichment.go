package models

import "time"

// EnrichmentResult is the per-business snapshot written by the processor and
// read by presentation code. One row per business, overwritten on refresh.
type EnrichmentResult struct {
	BusinessID  int64             `json:"business_id"`
	FetchStatus string            `json:"fetch_status"` // ok, not_found, error
	Rating      float64           `json:"rating"`
	RatingCount int64             `json:"rating_count"`
	Hours       map[string]string `json:"hours,omitempty"` // weekday -> "09:00-17:00"
	PhotoRefs   []string          `json:"photo_refs,omitempty"`
	PlaceID     string            `json:"place_id,omitempty"`
	FetchedAt   time.Time         `json:"fetched_at"`
}
