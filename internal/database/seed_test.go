package database

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/repository/memstore"
)

func TestDemoVenues(t *testing.T) {
	now := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	venues := DemoVenues(now)
	require.Len(t, venues, 5)

	for _, v := range venues {
		assert.Len(t, v.Seats, v.TotalSeats, v.Name)
		if v.Kind == model.VenueEvent {
			require.NotNil(t, v.StartsAt)
			assert.True(t, v.StartsAt.After(now), v.Name)
		}
	}

	summit := venues[3]
	assert.Equal(t, "A1", summit.Seats[0].Label())
	assert.Equal(t, "A25", summit.Seats[24].Label())
	assert.Equal(t, "B1", summit.Seats[25].Label())
	assert.Equal(t, "H25", summit.Seats[199].Label())
	assert.True(t, summit.Seats[0].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, summit.Seats[100].Price.Equal(decimal.NewFromInt(75)))

	fest := venues[4]
	assert.Equal(t, "J30", fest.Seats[299].Label())
	assert.True(t, fest.Seats[149].Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, fest.Seats[150].Price.Equal(decimal.NewFromInt(75)))
	assert.True(t, fest.Seats[299].Price.Equal(decimal.NewFromInt(50)))
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Now()

	n, err := Seed(ctx, store, store.Venues(), now)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = Seed(ctx, store, store.Venues(), now)
	require.NoError(t, err)
	assert.Zero(t, n)

	libs, err := store.Venues().List(ctx, model.VenueLibrary, nil)
	require.NoError(t, err)
	require.Len(t, libs, 3)
	assert.Zero(t, libs[0].OccupiedCount())
}
