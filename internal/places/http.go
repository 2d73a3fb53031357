package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bizdir/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPClient is the production Client against the provider's JSON API. A
// client-side limiter keeps us under the provider's advertised rate even
// before the provider starts returning 429s.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewHTTPClient(cfg config.PlacesConfig, logger *zerolog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     logger.With().Str("component", "places").Logger(),
	}
}

type detailsResponse struct {
	Status string   `json:"status"`
	Result *Details `json:"result"`
}

func (c *HTTPClient) FetchPlaceDetails(ctx context.Context, query string) (*Details, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("places query is empty")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransientError{Cause: err}
		}
	}

	reqURL := fmt.Sprintf("%s/v1/place/details?query=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build places request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection errors are transient by contract.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &TransientError{Cause: err}
	}
	defer resp.Body.Close()

	c.log.Debug().Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("place details fetched")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, &TransientError{Cause: fmt.Errorf("provider returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("provider returned unexpected status %d", resp.StatusCode)
	}

	var body detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &TransientError{Cause: fmt.Errorf("decode provider response: %w", err)}
	}

	// Some provider plans report misses as 200 with a status field.
	if strings.EqualFold(body.Status, "not_found") || body.Result == nil {
		return nil, ErrNotFound
	}

	return body.Result, nil
}

var _ Client = (*HTTPClient)(nil)
