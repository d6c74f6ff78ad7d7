// Package inventory owns the per-unit availability counters of
// capacity-constrained properties.  Counters are only changed through
// Reserve and Release, and both run inside the caller's unit of work.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/repository"
)

// ErrInsufficientCapacity is wrapped by Reserve and Check failures.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// UnitStore is the counter storage.  DecrementTx must check and decrement in
// one atomic step.
type UnitStore interface {
	AvailableTx(ctx context.Context, q database.Querier, propertyID, unitID uint64) (int, error)
	DecrementTx(ctx context.Context, q database.Querier, propertyID, unitID uint64, qty int) (bool, error)
	IncrementTx(ctx context.Context, q database.Querier, propertyID, unitID uint64, qty int) error
}

// Ledger reserves and releases unit capacity.
type Ledger struct {
	units  UnitStore
	logger logging.Logger
}

func NewLedger(units UnitStore, logger logging.Logger) *Ledger {
	return &Ledger{units: units, logger: logger}
}

func insufficient(unitID uint64) error {
	return apperror.Wrap(apperror.KindBadRequest,
		fmt.Sprintf("unit %d does not have enough availability", unitID), ErrInsufficientCapacity)
}

func validate(sel []model.UnitSelection) error {
	if len(sel) == 0 {
		return apperror.BadRequest("at least one unit must be selected")
	}
	seen := make(map[uint64]bool, len(sel))
	for _, s := range sel {
		if s.Quantity <= 0 {
			return apperror.BadRequest("unit quantity must be positive")
		}
		if seen[s.UnitID] {
			return apperror.BadRequest(fmt.Sprintf("unit %d selected more than once", s.UnitID))
		}
		seen[s.UnitID] = true
	}
	return nil
}

// Check reports an error when any selected unit currently lacks capacity.
// It does not change counters; Reserve re-checks atomically.
func (l *Ledger) Check(ctx context.Context, q database.Querier, propertyID uint64, sel []model.UnitSelection) error {
	if err := validate(sel); err != nil {
		return err
	}
	for _, s := range sel {
		n, err := l.units.AvailableTx(ctx, q, propertyID, s.UnitID)
		if errors.Is(err, repository.ErrUnitNotFound) {
			return apperror.NotFound(fmt.Sprintf("unit %d not found", s.UnitID))
		}
		if err != nil {
			return err
		}
		if n < s.Quantity {
			return insufficient(s.UnitID)
		}
	}
	return nil
}

// Reserve decrements every selected unit by its quantity.  If any unit
// lacks capacity the decrements already applied in this call are reversed
// before the error is returned.
func (l *Ledger) Reserve(ctx context.Context, q database.Querier, propertyID uint64, sel []model.UnitSelection) error {
	if err := validate(sel); err != nil {
		return err
	}
	applied := make([]model.UnitSelection, 0, len(sel))
	for _, s := range sel {
		ok, err := l.units.DecrementTx(ctx, q, propertyID, s.UnitID, s.Quantity)
		if err == nil && !ok {
			err = insufficient(s.UnitID)
		}
		if err != nil {
			if rerr := l.Release(ctx, q, propertyID, applied); rerr != nil {
				l.logger.Errorf("reserve rollback for property %d: %v", propertyID, rerr)
			}
			return err
		}
		applied = append(applied, s)
	}
	return nil
}

// Release credits every selected unit back.  It is never capacity checked.
// Units that no longer exist are skipped.
func (l *Ledger) Release(ctx context.Context, q database.Querier, propertyID uint64, sel []model.UnitSelection) error {
	var errs []error
	for i := len(sel) - 1; i >= 0; i-- {
		s := sel[i]
		err := l.units.IncrementTx(ctx, q, propertyID, s.UnitID, s.Quantity)
		if errors.Is(err, repository.ErrUnitNotFound) {
			l.logger.Warnf("release skipped missing unit %d of property %d", s.UnitID, propertyID)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("release unit %d: %w", s.UnitID, err))
		}
	}
	return errors.Join(errs...)
}
