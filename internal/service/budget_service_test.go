package service

import (
	"context"
	"testing"
	"time"

	"bizdir/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetServiceCurrentPeriod(t *testing.T) {
	db := newServiceTestDB(t)

	logger := zerolog.Nop()
	svc := NewBudgetService(db, models.Cents(20000), &logger)
	ctx := context.Background()

	period, err := svc.CurrentPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodKeyFor(time.Now()), period.PeriodKey)
	assert.Equal(t, models.Cents(0), period.SpentCents)
	assert.Equal(t, models.Cents(20000), period.CapCents)

	// A cap change in config lands on the next read
	svc = NewBudgetService(db, models.Cents(50000), &logger)
	period, err = svc.CurrentPeriod(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(50000), period.CapCents)
}

func TestBudgetServiceStatus(t *testing.T) {
	db := newServiceTestDB(t)

	logger := zerolog.Nop()
	svc := NewBudgetService(db, models.Cents(200), &logger)
	ctx := context.Background()

	// Ensure the period exists, then spend half the cap
	_, err := svc.CurrentPeriod(ctx)
	require.NoError(t, err)
	require.NoError(t, db.CommitSpend(ctx, models.PeriodKeyFor(time.Now()), models.Cents(100)))

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, status.SpentUSD)
	assert.Equal(t, 1.0, status.RemainingUSD)
	assert.Equal(t, 2.0, status.CapUSD)
	assert.Equal(t, 50.0, status.PercentUsed)
}
