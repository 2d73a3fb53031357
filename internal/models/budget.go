package models

import "time"

// BudgetPeriod is one accounting window of metered spend. SpentCents only
// grows, and only from confirmed billable calls.
type BudgetPeriod struct {
	PeriodKey  string    `json:"period_key"` // YYYY-MM, UTC
	SpentCents Cents     `json:"spent_cents"`
	CapCents   Cents     `json:"cap_cents"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Remaining never goes below zero even if a final call overshot the cap.
func (p *BudgetPeriod) Remaining() Cents {
	if p.SpentCents >= p.CapCents {
		return 0
	}
	return p.CapCents - p.SpentCents
}

func (p *BudgetPeriod) PercentUsed() float64 {
	if p.CapCents <= 0 {
		return 100
	}
	return float64(p.SpentCents) / float64(p.CapCents) * 100
}

// PeriodKeyFor formats the accounting window for a point in time.
func PeriodKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// BudgetStatus is the read-only snapshot exposed to operators.
type BudgetStatus struct {
	PeriodKey    string  `json:"period_key"`
	SpentUSD     float64 `json:"spent_usd"`
	RemainingUSD float64 `json:"remaining_usd"`
	PercentUsed  float64 `json:"percent_used"`
	CapUSD       float64 `json:"cap_usd"`
}
