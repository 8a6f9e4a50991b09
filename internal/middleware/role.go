package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// RequireRole lets the request through only when JWTAuth resolved a user
// with one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return Unauthenticated(c, "authentication required")
			}
			if !allowed[u.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": model.CodeNotAuthorized})
			}
			return next(c)
		}
	}
}
