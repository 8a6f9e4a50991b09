// Package middleware holds the echo middleware shared by the routes.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/utils"
)

const userKey = "user"

// JWTAuth validates a Bearer access token and stores the resolved
// model.UserRef in the echo context.  Rejections are 401 with
// clear_token=true so the client discards its stored credential.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return Unauthenticated(c, "missing bearer token")
			}
			user, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return Unauthenticated(c, model.Message(err))
			}
			c.Set(userKey, user)

			req := c.Request()
			entry := logging.FromContext(req.Context()).WithField("user_id", user.ID)
			c.SetRequest(req.WithContext(logging.ToContext(req.Context(), entry)))
			return next(c)
		}
	}
}

// Unauthenticated writes the 401 body shared by auth middleware and
// handlers.
func Unauthenticated(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"error":       msg,
		"code":        model.CodeUnauthenticated,
		"clear_token": true,
	})
}

// CurrentUser returns the identity stored by JWTAuth.
func CurrentUser(c echo.Context) (model.UserRef, bool) {
	u, ok := c.Get(userKey).(model.UserRef)
	return u, ok && u.ID != 0
}

// userID is the rate limit / cache key part for the caller.
func userID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok {
		return strconv.FormatUint(u.ID, 10)
	}
	return "anon"
}
