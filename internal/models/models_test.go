package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUSD(t *testing.T) {
	tests := []struct {
		input   string
		want    Cents
		wantErr bool
	}{
		{"0.20", 20, false},
		{"200.00", 20000, false},
		{"25", 2500, false},
		{"0", 0, false},
		{" 1.50 ", 150, false},
		{"0.001", 0, true}, // sub-cent
		{"-1.00", 0, true}, // negative
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseUSD(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestCentsFormatting(t *testing.T) {
	assert.Equal(t, 0.2, Cents(20).USD())
	assert.Equal(t, 200.0, Cents(20000).USD())
	assert.Equal(t, "$0.20", Cents(20).String())
	assert.Equal(t, "$200.00", Cents(20000).String())
}

func TestBudgetPeriodRemaining(t *testing.T) {
	p := &BudgetPeriod{SpentCents: 100, CapCents: 200}
	assert.Equal(t, Cents(100), p.Remaining())
	assert.Equal(t, 50.0, p.PercentUsed())

	// Overspend clamps to zero
	p.SpentCents = 220
	assert.Equal(t, Cents(0), p.Remaining())

	// Нулевой лимит означает запрет платных вызовов
	zero := &BudgetPeriod{SpentCents: 0, CapCents: 0}
	assert.Equal(t, Cents(0), zero.Remaining())
	assert.Equal(t, 100.0, zero.PercentUsed())
}

func TestPeriodKeyFor(t *testing.T) {
	utc := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-09", PeriodKeyFor(utc))

	// Local time near a month boundary resolves in UTC
	offset := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2026, 10, 1, 2, 0, 0, 0, offset)
	assert.Equal(t, "2026-09", PeriodKeyFor(local))
}

func TestValidReason(t *testing.T) {
	assert.True(t, ValidReason(ReasonSeed))
	assert.True(t, ValidReason(ReasonTraffic))
	assert.True(t, ValidReason(ReasonUserClick))
	assert.False(t, ValidReason("marketing"))
	assert.False(t, ValidReason(""))
}

func TestDefaultPriority(t *testing.T) {
	assert.Equal(t, int64(0), DefaultPriority(ReasonSeed))
	assert.Equal(t, int64(0), DefaultPriority(ReasonTraffic))
	assert.Equal(t, int64(50), DefaultPriority(ReasonUserClick))
}

func TestQueueEntryIsTerminal(t *testing.T) {
	entry := &QueueEntry{Status: QueueStatusPending}
	assert.False(t, entry.IsTerminal())

	entry.Status = QueueStatusProcessing
	assert.False(t, entry.IsTerminal())

	entry.Status = QueueStatusDone
	assert.True(t, entry.IsTerminal())

	entry.Status = QueueStatusFailed
	assert.True(t, entry.IsTerminal())
}

func TestBusinessPlaceQuery(t *testing.T) {
	b := &Business{Name: "Golden Crust Bakery", Address: "412 Main St"}
	assert.Equal(t, "Golden Crust Bakery, 412 Main St", b.PlaceQuery())

	b.Address = ""
	assert.Equal(t, "Golden Crust Bakery", b.PlaceQuery())
}
