package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/service"
)

// AvailabilityReader reports remaining unit capacity.
type AvailabilityReader interface {
	Availability(ctx context.Context, propertyID uint64) (*service.PropertyAvailability, error)
}

// PropertyHandler serves /v1/properties.
type PropertyHandler struct {
	svc AvailabilityReader
}

func NewPropertyHandler(svc AvailabilityReader) *PropertyHandler {
	if svc == nil {
		panic("nil service passed to NewPropertyHandler")
	}
	return &PropertyHandler{svc: svc}
}

// Units handles GET /v1/properties/:id/units.
func (h *PropertyHandler) Units(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	out, err := h.svc.Availability(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
