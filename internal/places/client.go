// Package places talks to the external metered places-data source. Every
// successful lookup is billable, so callers go through the budget-gated
// processor rather than calling this directly.
package places

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the provider has no record for the query. Permanent
	// for the queue entry; the provider does not bill these.
	ErrNotFound = errors.New("place not found")

	// ErrRateLimited means the provider throttled us. Retryable, and a signal
	// to abandon the rest of the current batch.
	ErrRateLimited = errors.New("places provider rate limited")
)

// TransientError wraps timeouts and 5xx responses. Retryable up to the
// attempt ceiling.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient places failure: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, ErrRateLimited)
}

// Details is the structured record returned for one business query.
type Details struct {
	PlaceID     string            `json:"place_id"`
	Rating      float64           `json:"rating"`
	RatingCount int64             `json:"rating_count"`
	Hours       map[string]string `json:"hours"`
	PhotoRefs   []string          `json:"photo_refs"`
}

// Client fetches place details for an identifying query (name + address).
type Client interface {
	FetchPlaceDetails(ctx context.Context, query string) (*Details, error)
}
