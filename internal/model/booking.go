package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
)

// Booking records one user's claim on one seat.  Bookings are never
// deleted; releasing a seat flips Status to completed and stamps LeftAt.
//
// Fields:
//
//	ID         – primary key identifier.
//	UserID     – user holding (or who held) the seat.
//	Kind       – library or event.
//	VenueID    – venue the seat belongs to.
//	SeatID     – seat row id at booking time.
//	Seat       – seat locator at booking time.
//	SeatNumber – human readable seat label ("2", "A12").
//	Status     – active or completed.
//	Price      – captured price (zero for library bookings).
//	BookedAt   – creation timestamp.
//	LeftAt     – completion timestamp (nil while active).
//	Venue      – venue summary, populated by listings only.
//	SeatVersion – seat version after the transition that returned this
//	              booking; zero when the seat was not touched.
type Booking struct {
	ID         uint64          `json:"id"`               // bookings.id
	UserID     uint64          `json:"userId"`           // bookings.user_id
	Kind       VenueKind       `json:"type"`             // bookings.kind
	VenueID    uint64          `json:"venueId"`          // bookings.venue_id
	SeatID     uint64          `json:"seatId"`           // bookings.seat_id
	Seat       SeatLocator     `json:"seat"`             // bookings.row_label + seat_index
	SeatNumber string          `json:"seatNumber"`       // bookings.seat_number
	Status     BookingStatus   `json:"status"`           // bookings.status
	Price      decimal.Decimal `json:"price"`            // bookings.price
	BookedAt   time.Time       `json:"bookedAt"`         // bookings.booked_at
	LeftAt     *time.Time      `json:"leftAt,omitempty"` // bookings.left_at (nullable)
	Venue      *VenueSummary   `json:"venue,omitempty"`

	SeatVersion uint64 `json:"seatVersion,omitempty"`
}

// Active reports whether the booking still holds its seat.
func (b Booking) Active() bool { return b.Status == BookingActive }
