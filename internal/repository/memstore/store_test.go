package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/repository"
)

func library(n int) *model.Venue {
	v := &model.Venue{Kind: model.VenueLibrary, Name: "Central", TotalSeats: n}
	for i := 1; i <= n; i++ {
		v.Seats = append(v.Seats, model.Seat{Number: i})
	}
	return v
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	v := library(2)
	require.NoError(t, s.Venues().Create(ctx, v))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		seat, err := s.Seats().GetForUpdate(ctx, v.ID, model.SeatLocator{Number: 1})
		require.NoError(t, err)
		_, err = s.Seats().Occupy(ctx, seat, 1, 1, time.Now())
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Venues().GetWithSeats(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.OccupiedCount())
	assert.Equal(t, uint64(0), got.Seats[0].Version)
}

func TestSeatVersionGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	v := library(1)
	require.NoError(t, s.Venues().Create(ctx, v))
	seat := v.Seats[0]

	held, err := s.Seats().Occupy(ctx, seat, 1, 10, time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), held.Version)

	_, err = s.Seats().Occupy(ctx, seat, 2, 11, time.Now())
	assert.ErrorIs(t, err, repository.ErrStale)

	_, err = s.Seats().Free(ctx, seat)
	assert.ErrorIs(t, err, repository.ErrStale)

	freed, err := s.Seats().Free(ctx, held)
	require.NoError(t, err)
	assert.False(t, freed.Occupied)
	assert.Nil(t, freed.BookingID)
}

func TestBookingsEnforceUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := &model.Booking{UserID: 1, Kind: model.VenueLibrary, VenueID: 1, SeatID: 1, BookedAt: time.Now()}
	require.NoError(t, s.Bookings().Append(ctx, b))

	dup := &model.Booking{UserID: 1, Kind: model.VenueLibrary, VenueID: 1, SeatID: 2}
	assert.ErrorIs(t, s.Bookings().Append(ctx, dup), model.ErrDuplicateActiveBooking)

	taken := &model.Booking{UserID: 2, Kind: model.VenueLibrary, VenueID: 1, SeatID: 1}
	assert.ErrorIs(t, s.Bookings().Append(ctx, taken), model.ErrAlreadyOccupied)

	events := []*model.Booking{
		{UserID: 1, Kind: model.VenueEvent, VenueID: 2, SeatID: 3, Price: decimal.NewFromInt(150)},
		{UserID: 1, Kind: model.VenueEvent, VenueID: 2, SeatID: 4, Price: decimal.NewFromInt(100)},
	}
	for _, e := range events {
		require.NoError(t, s.Bookings().Append(ctx, e))
	}

	require.NoError(t, s.Bookings().Complete(ctx, b.ID, time.Now()))
	assert.ErrorIs(t, s.Bookings().Complete(ctx, b.ID, time.Now()), model.ErrNotFound)
	require.NoError(t, s.Bookings().Append(ctx, dup))

	active, err := s.Bookings().ListByUser(ctx, 1, model.BookingActive)
	require.NoError(t, err)
	assert.Len(t, active, 3)
	all, err := s.Bookings().ListByUser(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestVenueListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	for _, at := range []*time.Time{&future, &past} {
		v := &model.Venue{Kind: model.VenueEvent, Name: "Gig", TotalSeats: 1, StartsAt: at,
			Seats: []model.Seat{{Row: "A", Number: 1, Price: decimal.NewFromInt(50)}}}
		require.NoError(t, s.Venues().Create(ctx, v))
	}
	lib := library(2)
	require.NoError(t, s.Venues().Create(ctx, lib))

	upcoming, err := s.Venues().List(ctx, model.VenueEvent, &now)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, future, *upcoming[0].StartsAt)

	require.NoError(t, s.Venues().Delete(ctx, lib.ID))
	_, err = s.Seats().GetByIDForUpdate(ctx, lib.Seats[0].ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.Venues().Delete(ctx, lib.ID), model.ErrNotFound)

	n, err := s.Venues().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bad := &model.Venue{Kind: model.VenueLibrary, TotalSeats: 2, Seats: []model.Seat{{Number: 1}, {Number: 1}}}
	assert.ErrorIs(t, s.Venues().Create(ctx, bad), model.ErrInvalid)
}

func TestUsersAndTokens(t *testing.T) {
	ctx := context.Background()
	s := New()
	ada, err := s.Users().Create(ctx, "Ada", "ada@example.com", "pw", model.RoleStudent, 4)
	require.NoError(t, err)
	bob, err := s.Users().Create(ctx, "Bob", "bob@example.com", "pw", model.RoleStudent, 4)
	require.NoError(t, err)
	_, err = s.Users().Create(ctx, "Ada2", "ADA@example.com", "pw", model.RoleStudent, 4)
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	require.NoError(t, s.Users().SetSkills(ctx, ada, []string{"React", "Go"}))
	require.NoError(t, s.Users().SetSkills(ctx, bob, []string{"golang"}))

	found, err := s.Users().SearchBySkill(ctx, "GO", ada, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Bob", found[0].Name)

	require.NoError(t, s.Tokens().StoreRefresh(ctx, ada, "h", time.Now().Add(time.Hour)))
	uid, err := s.Tokens().ValidateRefresh(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, ada, uid)
	require.NoError(t, s.Tokens().RevokeAllForUser(ctx, ada))
	_, err = s.Tokens().ValidateRefresh(ctx, "h")
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	require.NoError(t, s.Tokens().StoreRefresh(ctx, bob, "once", time.Now().Add(time.Hour)))
	revoked, err := s.Tokens().RevokeByHash(ctx, "once")
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = s.Tokens().RevokeByHash(ctx, "once")
	require.NoError(t, err)
	assert.False(t, revoked)
	require.NoError(t, s.Tokens().StoreRefresh(ctx, bob, "stale", time.Now().Add(-time.Minute)))
	revoked, err = s.Tokens().RevokeByHash(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, revoked, "expired tokens are not live")

	all, err := s.Users().ListExcept(ctx, ada, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Bob", all[0].Name)
	assert.Equal(t, "bob@example.com", all[0].Email)
	assert.Equal(t, []string{"golang"}, all[0].Skills)
}
