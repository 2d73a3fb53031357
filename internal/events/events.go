package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventEnrichmentEnqueued  = "enrichment_enqueued"
	EventEnrichmentCompleted = "enrichment_completed"
	EventEnrichmentFailed    = "enrichment_failed"
	EventBudgetThreshold     = "budget_threshold"
)

// EnrichmentEventPayload describes the minimal entry snapshot for event
// consumers (cache writer, metrics).
type EnrichmentEventPayload struct {
	EntryID    int64  `json:"entry_id"`
	BusinessID int64  `json:"business_id"`
	Reason     string `json:"reason"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
}

// BudgetEventPayload is published when spend crosses a warning threshold.
type BudgetEventPayload struct {
	PeriodKey   string  `json:"period_key"`
	SpentUSD    float64 `json:"spent_usd"`
	CapUSD      float64 `json:"cap_usd"`
	PercentUsed float64 `json:"percent_used"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// UnmarshalPayload decodes the JSON payload into dst.
func (e *Event) UnmarshalPayload(dst interface{}) error {
	return json.Unmarshal(e.Payload, dst)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
