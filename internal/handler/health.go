package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ClientCounter reports live websocket connections.
type ClientCounter interface {
	ConnectedClients() int
}

// Health is the liveness endpoint used by load balancers.  It also reports
// how many real-time clients this instance is serving.
func Health(hub ClientCounter) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":           "ok",
			"connectedClients": hub.ConnectedClients(),
		})
	}
}
