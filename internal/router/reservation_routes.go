package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/handler"
	"github.com/iliyamo/reservation-engine/internal/middleware"
	"github.com/iliyamo/reservation-engine/internal/model"
)

// RegisterReservations mounts /v1/reservations.  Only consumers book;
// both parties can read, list and transition their own reservations, and
// the service decides which transitions each role may make.
func RegisterReservations(v1 *echo.Group, h *handler.ReservationHandler) {
	g := v1.Group("/reservations")
	g.POST("", h.Create, middleware.RequireRole(model.RoleConsumer))
	g.GET("", h.List)
	g.POST("/analytics", h.Analytics)
	g.GET("/ref/:reference", h.GetByReference)
	g.GET("/:id", h.Get)
	g.PATCH("/:id/status", h.UpdateStatus)
}

// RegisterProperties mounts the availability read.  It is not cached since
// every booking changes it.
func RegisterProperties(v1 *echo.Group, h *handler.PropertyHandler) {
	v1.GET("/properties/:id/units", h.Units)
}
