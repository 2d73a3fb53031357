package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bizdir/internal/config"
	"bizdir/internal/database"
	"bizdir/internal/models"
	"bizdir/internal/places"
	"bizdir/internal/repository"
	"bizdir/internal/service"
	"bizdir/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFullKey   = "full-access-key"
	testReaderKey = "reader-key"
	testSecret    = "topsecret"
)

type okPlacesClient struct{}

func (okPlacesClient) FetchPlaceDetails(ctx context.Context, query string) (*places.Details, error) {
	return &places.Details{PlaceID: "place-1", Rating: 4.5, RatingCount: 10}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Enabled: true,
			HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
			Auth: config.APIAuthConfig{
				Enabled:      true,
				HeaderAPIKey: "x-api-key",
				APIKeys: []config.APIClientKey{
					{Key: testFullKey, Name: "ops"},
					{Key: testReaderKey, Name: "frontend", Permissions: []string{"read:stats"}},
				},
			},
		},
		Enrichment: config.EnrichmentConfig{
			CostPerCallUSD:   "0.20",
			MaxAttempts:      3,
			DefaultBatchSize: 10,
			ScheduleSecret:   testSecret,
		},
		Budget: config.BudgetConfig{MonthlyCapUSD: "200.00"},
	}
}

type testEnv struct {
	server *HTTPServer
	db     *database.DB
	ts     *httptest.Server
	lock   *repository.MemoryRunLock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	cost, err := cfg.CostPerCall()
	require.NoError(t, err)
	monthlyCap, err := cfg.MonthlyCap()
	require.NoError(t, err)

	cache := repository.NewMemoryResultCache(time.Hour)
	enrichment := service.NewEnrichmentService(db, cache, nil, &logger)
	budget := service.NewBudgetService(db, monthlyCap, &logger)

	processor := worker.NewProcessor(db, okPlacesClient{}, nil, worker.ProcessorOptions{
		CostPerCall: cost,
		MonthlyCap:  monthlyCap,
		MaxAttempts: cfg.Enrichment.MaxAttempts,
	}, &logger)

	lock := repository.NewMemoryRunLock()
	scheduler := worker.NewScheduler(processor, db, lock, time.Hour, 30*time.Minute, 10, &logger)

	server := NewHTTPServer(cfg, enrichment, budget, scheduler, db, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: server, db: db, ts: ts, lock: lock}
}

func (e *testEnv) request(t *testing.T, method, path, apiKey, body string, headers map[string]string) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) seedBusiness(t *testing.T, id int64) {
	t.Helper()
	err := e.db.UpsertBusiness(context.Background(), &models.Business{
		ID:      id,
		Name:    "Test Business",
		Address: "1 Main St",
	})
	require.NoError(t, err)
}

func TestEnqueueEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedBusiness(t, 1)

	resp := env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"business_id": 1, "reason": "user_click"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["enqueued"])

	// Duplicate request is accepted but not re-queued
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"business_id": 1, "reason": "traffic"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body["enqueued"])
}

func TestEnqueueEndpointValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedBusiness(t, 1)

	// Unknown reason
	resp := env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"business_id": 1, "reason": "marketing"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing business_id is a bad request, not a lookup miss
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"reason": "traffic"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Negative id likewise
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"business_id": -3, "reason": "traffic"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown business
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"business_id": 42, "reason": "traffic"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Malformed JSON
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"business_id": `, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown fields rejected
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testFullKey,
		`{"business_id": 1, "reason": "traffic", "bogus": true}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// GET not allowed
	resp = env.request(t, http.MethodGet, "/api/v1/enrichment/requests", testFullKey, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPIKeyAuth(t *testing.T) {
	env := newTestEnv(t)

	// Missing key
	resp := env.request(t, http.MethodGet, "/api/v1/enrichment/stats", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key
	resp = env.request(t, http.MethodGet, "/api/v1/enrichment/stats", "bogus", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Reader key may read stats
	resp = env.request(t, http.MethodGet, "/api/v1/enrichment/stats", testReaderKey, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// But not enqueue
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/requests", testReaderKey,
		`{"business_id": 1, "reason": "traffic"}`, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRunEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedBusiness(t, 1)

	_, err := env.db.Enqueue(context.Background(), 1, models.ReasonSeed, nil)
	require.NoError(t, err)

	// Wrong secret does no work
	resp := env.request(t, http.MethodPost, "/api/v1/enrichment/run", testFullKey, "",
		map[string]string{"X-Schedule-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	stats, err := env.db.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)

	// Correct secret drains the queue
	resp = env.request(t, http.MethodPost, "/api/v1/enrichment/run", testFullKey, "",
		map[string]string{"X-Schedule-Secret": testSecret})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report worker.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 1, report.Succeeded)
}

func TestRunEndpointConflict(t *testing.T) {
	env := newTestEnv(t)

	// Simulate a drain in flight
	acquired, err := env.lock.TryLock(context.Background(), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	resp := env.request(t, http.MethodPost, "/api/v1/enrichment/run", testFullKey, "",
		map[string]string{"X-Schedule-Secret": testSecret})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedBusiness(t, 1)

	_, err := env.db.Enqueue(context.Background(), 1, models.ReasonSeed, nil)
	require.NoError(t, err)

	resp := env.request(t, http.MethodGet, "/api/v1/enrichment/stats", testFullKey, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats models.QueueStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Pending)
}

func TestBudgetEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/v1/budget", testFullKey, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status models.BudgetStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, models.PeriodKeyFor(time.Now()), status.PeriodKey)
	assert.Equal(t, 200.0, status.CapUSD)
	assert.Equal(t, 0.0, status.SpentUSD)
	assert.Equal(t, 200.0, status.RemainingUSD)
}

func TestBusinessEnrichmentEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// No result yet
	resp := env.request(t, http.MethodGet, "/api/v1/businesses/1/enrichment", testFullKey, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	err := env.db.UpsertEnrichmentResult(context.Background(), &models.EnrichmentResult{
		BusinessID:  1,
		FetchStatus: models.FetchStatusOK,
		Rating:      4.1,
	})
	require.NoError(t, err)

	resp = env.request(t, http.MethodGet, "/api/v1/businesses/1/enrichment", testFullKey, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.EnrichmentResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 4.1, result.Rating)

	// Malformed id
	resp = env.request(t, http.MethodGet, "/api/v1/businesses/abc/enrichment", testFullKey, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Wrong subpath
	resp = env.request(t, http.MethodGet, "/api/v1/businesses/1/bogus", testFullKey, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/v1/enrichment/report", testFullKey, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "failed_enrichments_")
}

func TestHealthzSkipsAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/healthz", "", "", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRateLimit(t *testing.T) {
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	cfg.API.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}

	cache := repository.NewMemoryResultCache(time.Hour)
	enrichment := service.NewEnrichmentService(db, cache, nil, &logger)
	budget := service.NewBudgetService(db, 20000, &logger)
	server := NewHTTPServer(cfg, enrichment, budget, nil, db, &logger)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	get := func() int {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/enrichment/stats", nil)
		require.NoError(t, err)
		req.Header.Set("x-api-key", testFullKey)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())
}
