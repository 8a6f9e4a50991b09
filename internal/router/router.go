// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/handler"
	"github.com/iliyamo/campus-seat-reservation/internal/middleware"
)

// Deps is everything the HTTP surface needs.  RateLimit and Cache may be
// nil, in which case the routes run without them.
type Deps struct {
	JWTSecret string
	Auth      *handler.AuthHandler
	Venues    *handler.VenueHandler
	Directory *handler.DirectoryHandler
	Admin     *handler.AdminHandler
	Hub       handler.ClientCounter
	Realtime  http.Handler
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// New builds the echo instance with request ids, panic recovery and
// request logging in front of every route.
func New(d Deps, log *logrus.Entry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: shortuuid.New}))
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	RegisterRoutes(e, d.Hub, d.Realtime)
	RegisterAuth(e, d.Auth, d.JWTSecret)
	RegisterVenues(e, d.Venues, d.JWTSecret, orPass(d.RateLimit))
	RegisterDirectory(e, d.Directory, d.JWTSecret, orPass(d.Cache))
	RegisterAdmin(e, d.Admin, d.JWTSecret)
	return e
}

// RegisterRoutes registers the health check and the websocket endpoint.
func RegisterRoutes(e *echo.Echo, hub handler.ClientCounter, ws http.Handler) {
	e.GET("/healthz", handler.Health(hub))
	// the upgrade needs the raw writer; echo.WrapHandler hands it over
	e.GET("/ws", echo.WrapHandler(ws))
}

// RegisterAuth registers the auth routes.  Register, login, refresh and
// logout do not need an access token; profile and skills do.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	jwt := middleware.JWTAuth(jwtSecret)
	g.GET("/profile", a.Profile, jwt)
	g.PUT("/skills", a.UpdateSkills, jwt)
}

// RegisterDirectory registers the skill search and the user listing.
// Responses are cached per caller.
func RegisterDirectory(e *echo.Echo, h *handler.DirectoryHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/directory", middleware.JWTAuth(jwtSecret), cache)
	g.GET("/search", h.Search)
	g.GET("/users", h.Users)
}

func orPass(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw != nil {
		return mw
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
}
