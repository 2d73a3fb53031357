package database

import (
	"context"
	"testing"

	"bizdir/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessReadBack(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	business := &models.Business{
		ID:       7,
		Name:     "Golden Crust Bakery",
		Address:  "412 Main St, Springfield",
		Category: "bakery",
	}
	require.NoError(t, db.UpsertBusiness(ctx, business))

	got, err := db.GetBusiness(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Golden Crust Bakery", got.Name)
	assert.Equal(t, "bakery", got.Category)

	_, err = db.GetBusiness(ctx, 9999)
	assert.ErrorIs(t, err, ErrBusinessNotFound)
}

func TestUpsertBusiness(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	business := &models.Business{
		ID:      42,
		Name:    "Cedar & Sage Cafe",
		Address: "17 Elm Ave, Springfield",
	}
	require.NoError(t, db.UpsertBusiness(ctx, business))

	// Второй апсерт с тем же id обновляет запись
	business.Address = "19 Elm Ave, Springfield"
	require.NoError(t, db.UpsertBusiness(ctx, business))

	got, err := db.GetBusiness(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "19 Elm Ave, Springfield", got.Address)

	list, err := db.ListBusinesses(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
