package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/logging"
	"github.com/iliyamo/campus-seat-reservation/internal/middleware"
	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// retryAfterSeconds is advertised on 503 replies.
const retryAfterSeconds = "1"

var statuses = map[error]int{
	model.ErrNotFound:               http.StatusNotFound,
	model.ErrAlreadyOccupied:        http.StatusConflict,
	model.ErrDuplicateActiveBooking: http.StatusConflict,
	model.ErrNotAuthorized:          http.StatusForbidden,
	model.ErrUnauthenticated:        http.StatusUnauthorized,
	model.ErrUnavailable:            http.StatusServiceUnavailable,
	model.ErrInvalid:                http.StatusBadRequest,
}

// writeError renders err as {"error", "code"} with the status of its kind.
// Errors outside the taxonomy are logged and reported as 500 without
// exposing the cause.
func writeError(c echo.Context, err error) error {
	log := logging.FromContext(c.Request().Context())
	kind := model.Kind(err)
	switch kind {
	case model.ErrUnauthenticated:
		return middleware.Unauthenticated(c, model.Message(err))
	case model.ErrUnavailable:
		log.WithError(err).Warn("request failed, store unavailable")
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
	case nil:
		log.WithError(err).Error("unhandled error")
	}
	status, ok := statuses[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, echo.Map{"error": model.Message(err), "code": model.Code(err)})
}

func invalid(c echo.Context, msg string) error {
	return writeError(c, model.NewError(model.ErrInvalid, msg))
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, model.NewError(model.ErrInvalid, "invalid "+name)
	}
	return id, nil
}

// caller returns the authenticated user or an Unauthenticated error.
func caller(c echo.Context) (model.UserRef, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return model.UserRef{}, model.NewError(model.ErrUnauthenticated, "authentication required")
	}
	return u, nil
}

// seatRef accepts a seat given as a JSON string ("A12") or number (12).
type seatRef string

func (r *seatRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = seatRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("seat must be a string or a number")
	}
	*r = seatRef(n.String())
	return nil
}

// numeric reports whether the reference is a bare integer.
func (r seatRef) numeric() (uint64, bool) {
	n, err := strconv.ParseUint(string(r), 10, 64)
	return n, err == nil
}
