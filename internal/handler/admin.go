package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// maxVenueSeats bounds a single provisioning request.
const maxVenueSeats = 2000

// VenueProvisioner creates and removes venues.
type VenueProvisioner interface {
	Create(ctx context.Context, v *model.Venue) error
	Delete(ctx context.Context, id uint64) error
}

// VenueResetter frees every seat of a venue.
type VenueResetter interface {
	ResetVenue(ctx context.Context, venueID uint64) (int, error)
}

// AdminHandler serves the ADMIN-only catalog routes.
type AdminHandler struct {
	Tx     TxRunner
	Venues VenueProvisioner
	Engine VenueResetter
}

func NewAdminHandler(tx TxRunner, venues VenueProvisioner, engine VenueResetter) *AdminHandler {
	if tx == nil || venues == nil || engine == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Tx: tx, Venues: venues, Engine: engine}
}

// provisionReq describes a venue.  Event seats are laid out SeatsPerRow to
// a row and priced by tier: the first TierSize seats cost Prices[0], the
// next TierSize Prices[1], and the last price applies to the rest.
type provisionReq struct {
	Kind        model.VenueKind   `json:"kind"`
	Name        string            `json:"name"`
	Floor       string            `json:"floor"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Location    string            `json:"location"`
	StartsAt    *time.Time        `json:"startsAt"`
	TotalSeats  int               `json:"totalSeats"`
	SeatsPerRow int               `json:"seatsPerRow"`
	TierSize    int               `json:"tierSize"`
	Prices      []decimal.Decimal `json:"prices"`
}

func (r provisionReq) venue() (model.Venue, error) {
	name := strings.TrimSpace(r.Name)
	switch {
	case !r.Kind.Valid():
		return model.Venue{}, model.NewError(model.ErrInvalid, "kind must be library or event")
	case name == "":
		return model.Venue{}, model.NewError(model.ErrInvalid, "name is required")
	case r.TotalSeats <= 0 || r.TotalSeats > maxVenueSeats:
		return model.Venue{}, model.NewError(model.ErrInvalid, "totalSeats must be between 1 and 2000")
	}
	v := model.Venue{Kind: r.Kind, Name: name, TotalSeats: r.TotalSeats}
	if r.Kind == model.VenueLibrary {
		v.Floor = strings.TrimSpace(r.Floor)
		v.Seats = model.NumberedSeats(r.TotalSeats)
		return v, nil
	}

	if r.StartsAt == nil {
		return model.Venue{}, model.NewError(model.ErrInvalid, "startsAt is required for events")
	}
	for _, p := range r.Prices {
		if p.IsNegative() {
			return model.Venue{}, model.NewError(model.ErrInvalid, "prices must not be negative")
		}
	}
	starts := r.StartsAt.UTC()
	v.StartsAt = &starts
	v.Description = strings.TrimSpace(r.Description)
	v.Category = strings.TrimSpace(r.Category)
	v.Location = strings.TrimSpace(r.Location)
	v.Seats = model.RowSeats(r.TotalSeats, r.SeatsPerRow, model.TieredPrice(r.TierSize, r.Prices...))
	return v, nil
}

// CreateVenue handles POST /admin/venues.
func (h *AdminHandler) CreateVenue(c echo.Context) error {
	var req provisionReq
	if err := c.Bind(&req); err != nil {
		return invalid(c, "invalid body")
	}
	v, err := req.venue()
	if err != nil {
		return writeError(c, err)
	}
	// venue and seats are inserted together or not at all
	err = h.Tx.WithTx(c.Request().Context(), func(ctx context.Context) error {
		return h.Venues.Create(ctx, &v)
	})
	if err != nil {
		return writeError(c, err)
	}
	logging.FromContext(c.Request().Context()).
		WithField("venue_id", v.ID).WithField("seats", v.TotalSeats).Info("venue provisioned")
	return c.JSON(http.StatusCreated, v)
}

// ResetVenue handles POST /admin/venues/:id/reset: every seat is freed and
// the active bookings on it are completed.
func (h *AdminHandler) ResetVenue(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	n, err := h.Engine.ResetVenue(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"venueId": id, "releasedBookings": n})
}

// DeleteVenue handles DELETE /admin/venues/:id.  Seats go with the venue;
// bookings stay in the ledger and can still be released.
func (h *AdminHandler) DeleteVenue(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if err := h.Venues.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
