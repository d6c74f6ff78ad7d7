package middleware

// identity.go holds the context accessors shared by the middlewares and the
// handlers.  JWTAuth is the only writer.

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/model"
)

const actorKey = "actor"

// ActorFrom returns the authenticated caller, if any.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	return a, ok && a.ID != 0
}

// actorTag identifies the caller in rate-limit keys, e.g. "operator-9".
// Unauthenticated requests share the "anon" tag.
func actorTag(c echo.Context) string {
	a, ok := ActorFrom(c)
	if !ok {
		return "anon"
	}
	return strings.ToLower(string(a.Role)) + "-" + strconv.FormatUint(a.ID, 10)
}
