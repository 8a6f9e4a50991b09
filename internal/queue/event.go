// Package queue carries the booking audit trail over RabbitMQ.  The
// publisher is fed by the reservation engine after each committed
// transition; the consumer appends one line per event to logs/booking.log.
package queue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// BookingQueue is the durable queue holding audit events.
const BookingQueue = "booking.events"

// BookingEvent is published for every committed reserve and release.  It
// holds enough for downstream consumers to log or run analytics without
// querying the primary database.
type BookingEvent struct {
	Type       model.SeatUpdateType `json:"type"`
	BookingID  uint64               `json:"booking_id"`
	UserID     uint64               `json:"user_id"`
	Kind       model.VenueKind      `json:"kind"`
	VenueID    uint64               `json:"venue_id"`
	VenueName  string               `json:"venue_name,omitempty"`
	SeatNumber string               `json:"seat_number"`
	Price      decimal.Decimal      `json:"price"`
	At         time.Time            `json:"at"`
}

// NewBookingEvent describes b after action.
func NewBookingEvent(b model.Booking, action model.SeatUpdateType) BookingEvent {
	ev := BookingEvent{
		Type:       action,
		BookingID:  b.ID,
		UserID:     b.UserID,
		Kind:       b.Kind,
		VenueID:    b.VenueID,
		SeatNumber: b.SeatNumber,
		Price:      b.Price,
		At:         b.BookedAt,
	}
	if action == model.SeatReleased && b.LeftAt != nil {
		ev.At = *b.LeftAt
	}
	if b.Venue != nil {
		ev.VenueName = b.Venue.Name
	}
	return ev
}

// LogLine renders the event as a single log line.
func (e BookingEvent) LogLine() string {
	return fmt.Sprintf("[%s] Seat %s | booking_id=%d | user_id=%d | %s_id=%d | venue=%q | seat=%s | price=%s\n",
		e.At.UTC().Format(time.RFC3339), e.Type, e.BookingID, e.UserID, e.Kind, e.VenueID, e.VenueName, e.SeatNumber, e.Price.StringFixed(2))
}
