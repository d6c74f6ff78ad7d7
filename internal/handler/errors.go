package handler // handler maps HTTP requests onto the reservation services

import (
	"errors"   // errors.As for the action-required case
	"net/http" // status codes
	"strconv"  // path parameter parsing

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/middleware"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/service"
)

// statusFor maps error kinds to HTTP status codes.
var statusFor = map[apperror.Kind]int{
	apperror.KindBadRequest:    http.StatusBadRequest,
	apperror.KindNotFound:      http.StatusNotFound,
	apperror.KindAuthorization: http.StatusForbidden,
	apperror.KindConflict:      http.StatusConflict,
	apperror.KindUpstream:      http.StatusBadGateway,
	apperror.KindInternal:      http.StatusInternalServerError,
}

// writeError renders err as {"error": message, "kind": kind}.  Internal
// errors are logged with their cause and shown to the client generically.
// A charge that needs a follow-up step also returns the outcome so the
// client can continue it.
func writeError(c echo.Context, err error) error {
	kind := apperror.KindOf(err)
	code, ok := statusFor[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	if code >= http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	body := echo.Map{"error": apperror.MessageOf(err), "kind": kind}
	var are *service.ActionRequiredError
	if errors.As(err, &are) {
		body["payment"] = payment.View(are.Outcome)
	}
	return c.JSON(code, body)
}

// getActor returns the caller stored by the JWT middleware.
func getActor(c echo.Context) (model.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return model.Actor{}, apperror.Authorization("unauthorized")
	}
	return a, nil
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.BadRequest("invalid " + name)
	}
	return id, nil
}
