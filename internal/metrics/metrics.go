package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdir",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdir",
			Name:      "enrichment_enqueued_total",
			Help:      "Enrichment requests admitted to the queue, by reason.",
		},
		[]string{"reason"},
	)

	processed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bizdir",
			Name:      "enrichment_processed_total",
			Help:      "Queue entries processed, by outcome.",
		},
		[]string{"outcome"},
	)

	budgetSpent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bizdir",
			Name:      "budget_spent_usd",
			Help:      "Confirmed spend in the current period.",
		},
	)

	budgetRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bizdir",
			Name:      "budget_remaining_usd",
			Help:      "Remaining budget in the current period.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, enqueued, processed, budgetSpent, budgetRemaining)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncEnqueued counts an admitted enqueue by reason.
func IncEnqueued(reason string) {
	enqueued.WithLabelValues(reason).Inc()
}

// IncProcessed counts a processed entry by outcome
// (done, retry, failed, released).
func IncProcessed(outcome string) {
	processed.WithLabelValues(outcome).Inc()
}

// SetBudget updates the period spend gauges.
func SetBudget(spentUSD, remainingUSD float64) {
	budgetSpent.Set(spentUSD)
	budgetRemaining.Set(remainingUSD)
}
