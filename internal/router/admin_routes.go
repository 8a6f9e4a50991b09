package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/handler"
	"github.com/iliyamo/campus-seat-reservation/internal/middleware"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// RegisterAdmin registers ADMIN-scoped catalog endpoints under /admin.
// All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/venues", a.CreateVenue)
	g.POST("/venues/:id/reset", a.ResetVenue)
	g.DELETE("/venues/:id", a.DeleteVenue)
}
