package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Seat describes one seat inside a venue. Library seats are addressed by
// Number alone; event seats also carry a Row and a Price.  A seat is free
// when Occupied is false, and then OccupantID, OccupiedAt and BookingID are
// all nil.
//
// Fields:
//
//	ID         – primary key identifier.
//	VenueID    – venue to which this seat belongs.
//	Row        – row label for event seats (A, B, AA); empty for libraries.
//	Number     – seat number, unique within the venue (or within the row).
//	Price      – ticket price for event seats; zero for library seats.
//	Occupied   – whether the seat is currently held.
//	OccupantID – user holding the seat.
//	OccupiedAt – when the current hold started.
//	BookingID  – active booking that holds the seat.
//	Version    – incremented on every occupancy transition.
type Seat struct {
	ID         uint64          `json:"id"`                   // seats.id
	VenueID    uint64          `json:"venueId"`              // seats.venue_id
	Row        string          `json:"row,omitempty"`        // seats.row_label
	Number     int             `json:"number"`               // seats.seat_number
	Price      decimal.Decimal `json:"price"`                // seats.price
	Occupied   bool            `json:"isOccupied"`           // seats.occupied
	OccupantID *uint64         `json:"occupiedBy,omitempty"` // seats.occupant_id (nullable)
	OccupiedAt *time.Time      `json:"occupiedAt,omitempty"` // seats.occupied_at (nullable)
	BookingID  *uint64         `json:"-"`                    // seats.booking_id (nullable)
	Version    uint64          `json:"version"`              // seats.version
}

// Locator returns the address of the seat within its venue.
func (s Seat) Locator() SeatLocator {
	return SeatLocator{Row: s.Row, Number: s.Number}
}

// Label is the human readable seat number: "2" for library seats, "A12"
// for event seats.
func (s Seat) Label() string {
	return s.Locator().String()
}

// HeldBy reports whether the seat is occupied by the given booking.
func (s Seat) HeldBy(bookingID uint64) bool {
	return s.Occupied && s.BookingID != nil && *s.BookingID == bookingID
}

// SeatLocator addresses a seat inside a venue.
type SeatLocator struct {
	Row    string `json:"row,omitempty"`
	Number int    `json:"number"`
}

func (l SeatLocator) String() string {
	return l.Row + strconv.Itoa(l.Number)
}

// ParseSeatLocator parses "12" or "A12" (case-insensitive row letters).
func ParseSeatLocator(raw string) (SeatLocator, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == len(s) {
		return SeatLocator{}, NewError(ErrInvalid, fmt.Sprintf("invalid seat %q", raw))
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil || n <= 0 {
		return SeatLocator{}, NewError(ErrInvalid, fmt.Sprintf("invalid seat %q", raw))
	}
	return SeatLocator{Row: s[:i], Number: n}, nil
}

// RowLabel converts a zero-based row index into A, B, ..., Z, AA, AB.
func RowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []byte
	for {
		res = append(res, byte('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}
