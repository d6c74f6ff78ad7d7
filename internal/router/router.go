package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/reservation-engine/internal/handler"
	"github.com/iliyamo/reservation-engine/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Health        echo.HandlerFunc
	Reservations  *handler.ReservationHandler
	Properties    *handler.PropertyHandler
	Payments      *handler.PaymentHandler
	Accounts      *handler.AccountHandler
	Notifications *handler.NotificationHandler
}

// Middlewares are the cross-cutting layers.  RateLimit wraps every /v1
// route after authentication so buckets are per actor; Cache is only
// mounted on the bank directory.
type Middlewares struct {
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// RegisterRoutes registers non-authenticated routes.  Only the health
// check lives outside /v1.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// Register mounts every route.  All /v1 routes require a valid access
// token; role restrictions are applied per group.
func Register(e *echo.Echo, h Handlers, mw Middlewares, jwtSecret string) {
	RegisterRoutes(e, h.Health)

	v1 := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	if mw.RateLimit != nil {
		v1.Use(mw.RateLimit)
	}
	RegisterReservations(v1, h.Reservations)
	RegisterProperties(v1, h.Properties)
	RegisterPayments(v1, h.Payments, mw.Cache)
	RegisterAccount(v1, h.Accounts)
	RegisterNotifications(v1, h.Notifications)
}
