package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeatLocator(t *testing.T) {
	tests := []struct {
		in      string
		want    SeatLocator
		wantErr bool
	}{
		{in: "2", want: SeatLocator{Number: 2}},
		{in: "A12", want: SeatLocator{Row: "A", Number: 12}},
		{in: " b1 ", want: SeatLocator{Row: "B", Number: 1}},
		{in: "AA3", want: SeatLocator{Row: "AA", Number: 3}},
		{in: "", wantErr: true},
		{in: "A", wantErr: true},
		{in: "0", wantErr: true},
		{in: "A-1", wantErr: true},
		{in: "1A", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeatLocator(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestRowLabel(t *testing.T) {
	assert.Equal(t, "A", RowLabel(0))
	assert.Equal(t, "Z", RowLabel(25))
	assert.Equal(t, "AA", RowLabel(26))
	assert.Equal(t, "AB", RowLabel(27))
	assert.Equal(t, "", RowLabel(-1))
}

func TestSeatHeldBy(t *testing.T) {
	id := uint64(7)
	s := Seat{Occupied: true, BookingID: &id}
	assert.True(t, s.HeldBy(7))
	assert.False(t, s.HeldBy(8))
	assert.False(t, Seat{}.HeldBy(7))
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("reserve: %w", Unavailable(cause))

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Retryable(err))
	assert.Equal(t, ErrUnavailable, Kind(err))
	assert.Equal(t, "seat store unavailable, try again", Message(err))

	occupied := NewError(ErrAlreadyOccupied, "seat 2 is already occupied")
	assert.False(t, Retryable(occupied))
	assert.Equal(t, "seat 2 is already occupied", Message(occupied))
	assert.Equal(t, "not found", Message(ErrNotFound))
	assert.Nil(t, Kind(errors.New("boom")))
	assert.Equal(t, "internal error", Message(errors.New("boom")))
}

func TestVenueTopics(t *testing.T) {
	v := Venue{ID: 3, Kind: VenueLibrary, TotalSeats: 2, Seats: []Seat{{Number: 1}, {Number: 2, Occupied: true}}}
	assert.Equal(t, "library-3", v.Topic())
	assert.Equal(t, 1, v.OccupiedCount())
	assert.Equal(t, 2, v.SeatCount())
	s, ok := v.Seat(SeatLocator{Number: 2})
	require.True(t, ok)
	assert.True(t, s.Occupied)

	u := SeatUpdate{VenueKind: VenueEvent, VenueID: 9}
	assert.Equal(t, "event-9", u.Topic())
}

func TestLayouts(t *testing.T) {
	lib := NumberedSeats(3)
	require.Len(t, lib, 3)
	assert.Equal(t, "3", lib[2].Label())

	price := TieredPrice(2, decimal.NewFromInt(10), decimal.NewFromInt(5))
	ev := RowSeats(5, 2, price)
	assert.Equal(t, []string{"A1", "A2", "B1", "B2", "C1"},
		[]string{ev[0].Label(), ev[1].Label(), ev[2].Label(), ev[3].Label(), ev[4].Label()})
	assert.True(t, ev[1].Price.Equal(decimal.NewFromInt(10)))
	assert.True(t, ev[4].Price.Equal(decimal.NewFromInt(5)))
	assert.True(t, TieredPrice(2)(0).IsZero())
}

func TestCodes(t *testing.T) {
	for _, k := range kinds {
		assert.Equal(t, k, KindForCode(Code(NewError(k, "x"))), k.Error())
	}
	assert.Equal(t, CodeInternal, Code(errors.New("boom")))
	assert.Nil(t, KindForCode("teapot"))
}
