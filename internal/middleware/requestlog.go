package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-seat-reservation/internal/logging"
)

// RequestLogger puts a request scoped logrus entry into the request context
// and logs one line per request.  It runs after echo's RequestID middleware.
func RequestLogger(base *logrus.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			entry := base.WithFields(logrus.Fields{
				"request_id": rid,
				"method":     req.Method,
				"path":       req.URL.Path,
			})
			c.SetRequest(req.WithContext(logging.ToContext(req.Context(), entry)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := logrus.Fields{
				"status":     c.Response().Status,
				"latency_ms": time.Since(start).Milliseconds(),
			}
			log := logging.FromContext(c.Request().Context()).WithFields(fields)
			switch {
			case c.Response().Status >= 500:
				log.WithError(err).Error("request failed")
			case c.Response().Status >= 400:
				log.Info("request rejected")
			default:
				log.Debug("request served")
			}
			return nil
		}
	}
}
