package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/handler"
	"github.com/iliyamo/campus-seat-reservation/internal/middleware"
)

// RegisterVenues registers the library and event routes.  Listings and
// seat maps are public; booking, leaving and the caller's bookings need a
// valid JWT.  Book routes sit behind the rate limiter.
func RegisterVenues(e *echo.Echo, h *handler.VenueHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	jwt := middleware.JWTAuth(jwtSecret)

	lib := e.Group("/venues/libraries")
	lib.GET("", h.Libraries)
	lib.GET("/:id/status", h.LibraryStatus)
	lib.POST("/book", h.BookLibrary, jwt, limiter)
	lib.DELETE("/leave/:bookingId", h.LeaveLibrary, jwt)
	lib.GET("/bookings", h.Bookings, jwt)

	ev := e.Group("/venues/events")
	ev.GET("", h.Events)
	ev.GET("/:id", h.Event)
	ev.POST("/book", h.BookEvent, jwt, limiter)
	ev.DELETE("/leave/:bookingId", h.LeaveEvent, jwt)
}
