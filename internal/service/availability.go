package service

import (
	"context"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/model"
)

// PropertyAvailability is a property with the remaining capacity of each
// unit.  Units is empty for property types without unit inventory.
type PropertyAvailability struct {
	Property *model.Property `json:"property"`
	Units    []model.Unit    `json:"units"`
}

// Availability returns the current remaining capacity of a property's
// units.  Any authenticated actor may read it.
func (s *ReservationService) Availability(ctx context.Context, propertyID uint64) (*PropertyAvailability, error) {
	if propertyID == 0 {
		return nil, apperror.BadRequest("property id is required")
	}
	p, err := s.Properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, classify(err)
	}
	out := &PropertyAvailability{Property: p, Units: []model.Unit{}}
	if !p.Type.CapacityConstrained() {
		return out, nil
	}
	if out.Units, err = s.Properties.ListUnits(ctx, propertyID); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
