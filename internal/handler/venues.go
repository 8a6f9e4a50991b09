package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/clock"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// VenueCatalog reads venues with their seat maps.
type VenueCatalog interface {
	GetWithSeats(ctx context.Context, id uint64) (model.Venue, error)
	List(ctx context.Context, kind model.VenueKind, from *time.Time) ([]model.Venue, error)
}

// Reservations is the reservation engine as seen by the HTTP layer.
type Reservations interface {
	Reserve(ctx context.Context, user model.UserRef, kind model.VenueKind, venueID uint64, loc model.SeatLocator) (model.Booking, error)
	Release(ctx context.Context, user model.UserRef, bookingID uint64, kind model.VenueKind) (model.Booking, error)
	ListBookings(ctx context.Context, userID uint64, status model.BookingStatus) ([]model.Booking, error)
}

// VenueHandler serves the library and event routes.  Book and leave go
// through the reservation engine; everything else is a read.
type VenueHandler struct {
	Venues VenueCatalog
	Engine Reservations
	Clock  clock.Clock
}

func NewVenueHandler(venues VenueCatalog, engine Reservations, clk clock.Clock) *VenueHandler {
	if venues == nil || engine == nil {
		panic("nil dependency passed to NewVenueHandler")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &VenueHandler{Venues: venues, Engine: engine, Clock: clk}
}

const readTimeout = 5 * time.Second

type bookLibraryReq struct {
	LibraryID  uint64  `json:"libraryId"`
	SeatNumber seatRef `json:"seatNumber"`
}

type bookEventReq struct {
	EventID uint64  `json:"eventId"`
	SeatID  seatRef `json:"seatId"`
}

type bookingResp struct {
	Message string        `json:"message"`
	Booking model.Booking `json:"booking"`
}

type libraryStatusResp struct {
	Library        model.Venue `json:"library"`
	TotalSeats     int         `json:"totalSeats"`
	OccupiedSeats  int         `json:"occupiedSeats"`
	AvailableSeats int         `json:"availableSeats"`
}

// Libraries handles GET /venues/libraries.
func (h *VenueHandler) Libraries(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()
	libs, err := h.Venues.List(ctx, model.VenueLibrary, nil)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, libs)
}

// LibraryStatus handles GET /venues/libraries/:id/status.
func (h *VenueHandler) LibraryStatus(c echo.Context) error {
	v, err := h.venue(c, model.VenueLibrary)
	if err != nil {
		return writeError(c, err)
	}
	occupied := v.OccupiedCount()
	return c.JSON(http.StatusOK, libraryStatusResp{
		Library:        v,
		TotalSeats:     v.SeatCount(),
		OccupiedSeats:  occupied,
		AvailableSeats: v.SeatCount() - occupied,
	})
}

// Events handles GET /venues/events.  Only events that have not started
// yet are listed.
func (h *VenueHandler) Events(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()
	now := h.Clock.Now()
	events, err := h.Venues.List(ctx, model.VenueEvent, &now)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, events)
}

// Event handles GET /venues/events/:id.
func (h *VenueHandler) Event(c echo.Context) error {
	v, err := h.venue(c, model.VenueEvent)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *VenueHandler) venue(c echo.Context, kind model.VenueKind) (model.Venue, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return model.Venue{}, err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()
	v, err := h.Venues.GetWithSeats(ctx, id)
	if err != nil {
		return model.Venue{}, err
	}
	if v.Kind != kind {
		return model.Venue{}, model.NewError(model.ErrNotFound, string(kind)+" not found")
	}
	return v, nil
}

// BookLibrary handles POST /venues/libraries/book.
func (h *VenueHandler) BookLibrary(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req bookLibraryReq
	if err := c.Bind(&req); err != nil {
		return invalid(c, "invalid body")
	}
	if req.LibraryID == 0 || req.SeatNumber == "" {
		return invalid(c, "libraryId and seatNumber are required")
	}
	loc, err := model.ParseSeatLocator(string(req.SeatNumber))
	if err != nil {
		return writeError(c, err)
	}
	b, err := h.Engine.Reserve(c.Request().Context(), user, model.VenueLibrary, req.LibraryID, loc)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bookingResp{Message: "Seat booked successfully", Booking: b})
}

// BookEvent handles POST /venues/events/book.  seatId is either a seat
// label ("A12") or the numeric seat id from the event's seat map.
func (h *VenueHandler) BookEvent(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req bookEventReq
	if err := c.Bind(&req); err != nil {
		return invalid(c, "invalid body")
	}
	if req.EventID == 0 || req.SeatID == "" {
		return invalid(c, "eventId and seatId are required")
	}
	loc, err := h.eventSeat(c.Request().Context(), req.EventID, req.SeatID)
	if err != nil {
		return writeError(c, err)
	}
	b, err := h.Engine.Reserve(c.Request().Context(), user, model.VenueEvent, req.EventID, loc)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, bookingResp{Message: "Event seat booked successfully", Booking: b})
}

func (h *VenueHandler) eventSeat(ctx context.Context, eventID uint64, ref seatRef) (model.SeatLocator, error) {
	id, ok := ref.numeric()
	if !ok {
		return model.ParseSeatLocator(string(ref))
	}
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	v, err := h.Venues.GetWithSeats(ctx, eventID)
	if err != nil {
		return model.SeatLocator{}, err
	}
	if v.Kind != model.VenueEvent {
		return model.SeatLocator{}, model.NewError(model.ErrNotFound, "event not found")
	}
	for _, s := range v.Seats {
		if s.ID == id {
			return s.Locator(), nil
		}
	}
	return model.SeatLocator{}, model.NewError(model.ErrNotFound, "seat not found")
}

// LeaveLibrary handles DELETE /venues/libraries/leave/:bookingId.
func (h *VenueHandler) LeaveLibrary(c echo.Context) error {
	return h.leave(c, model.VenueLibrary, "Seat released successfully")
}

// LeaveEvent handles DELETE /venues/events/leave/:bookingId.
func (h *VenueHandler) LeaveEvent(c echo.Context) error {
	return h.leave(c, model.VenueEvent, "Event seat released successfully")
}

func (h *VenueHandler) leave(c echo.Context, kind model.VenueKind, msg string) error {
	user, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "bookingId")
	if err != nil {
		return writeError(c, err)
	}
	b, err := h.Engine.Release(c.Request().Context(), user, id, kind)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bookingResp{Message: msg, Booking: b})
}

// Bookings handles GET /venues/libraries/bookings: the caller's active
// bookings of both kinds, newest first.
func (h *VenueHandler) Bookings(c echo.Context) error {
	user, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()
	bookings, err := h.Engine.ListBookings(ctx, user.ID, model.BookingActive)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bookings)
}
