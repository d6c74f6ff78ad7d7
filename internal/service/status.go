package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/policy"
	"github.com/iliyamo/reservation-engine/internal/repository"
)

// StatusChange is the result of UpdateStatus.  Settlement is set when a
// paid reservation was cancelled.
type StatusChange struct {
	Reservation *model.Reservation `json:"reservation"`
	Settlement  *policy.Settlement `json:"settlement,omitempty"`
}

// UpdateStatus moves a reservation to CANCELLED or COMPLETED.  Consumers
// may only cancel their own reservations; operators may cancel or complete
// reservations on their properties.  A terminal reservation always yields a
// conflict.  Inventory is released in the same unit as the status write.
func (s *ReservationService) UpdateStatus(ctx context.Context, reservationID uint64, actor model.Actor, to model.Status) (*StatusChange, error) {
	if to != model.StatusCancelled && to != model.StatusCompleted {
		return nil, apperror.BadRequest("status must be CANCELLED or COMPLETED")
	}
	if !actor.Role.Valid() || actor.ID == 0 {
		return nil, apperror.Authorization("unknown actor")
	}

	var res *model.Reservation
	err := s.Tx.WithinTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		r, err := s.Reservations.GetForUpdateTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return apperror.Conflict(fmt.Sprintf("reservation is already %s", strings.ToLower(string(r.Status))))
		}
		if !r.InvolvesActor(actor) {
			return apperror.Authorization("not allowed to update this reservation")
		}
		if actor.Role == model.RoleConsumer && to != model.StatusCancelled {
			return apperror.Authorization("consumers can only cancel reservations")
		}
		n, err := s.Reservations.TransitionTx(ctx, tx, r.ID, actor.Role, actor.ID, to)
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrConflict
		}
		if r.PropertyType.CapacityConstrained() {
			if err := s.Inventory.Release(ctx, tx, r.PropertyID, r.Units); err != nil {
				return err
			}
		}
		r.Status = to
		r.UpdatedAt = s.now().UTC()
		res = r
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	s.logger.Infof("reservation %s %s by %s %d", res.Reference, strings.ToLower(string(to)), strings.ToLower(string(actor.Role)), actor.ID)

	change := &StatusChange{Reservation: res}
	if to == model.StatusCancelled {
		change.Settlement = s.settleCancellation(ctx, res, actor)
	}
	s.afterTransition(ctx, res, actor)
	return change, nil
}

// ReservationUpdate is the update_reservation payload sent to every
// observer.  The parties get the full reservation pushed to them instead.
type ReservationUpdate struct {
	ID         uint64       `json:"id"`
	Reference  string       `json:"reference"`
	PropertyID uint64       `json:"property_id"`
	Status     model.Status `json:"status"`
	Price      int64        `json:"price"`
}

func publicUpdate(res *model.Reservation) ReservationUpdate {
	return ReservationUpdate{
		ID:         res.ID,
		Reference:  res.Reference,
		PropertyID: res.PropertyID,
		Status:     res.Status,
		Price:      res.Price,
	}
}

// afterTransition notifies the counter-party, pushes the full reservation to
// both parties and broadcasts a stripped update.
func (s *ReservationService) afterTransition(ctx context.Context, res *model.Reservation, by model.Actor) {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	recipient, role := res.OperatorID, model.RoleOperator
	if by.Role == model.RoleOperator {
		recipient, role = res.ConsumerID, model.RoleConsumer
	}
	verb := "cancelled"
	if res.Status == model.StatusCompleted {
		verb = "completed"
	}
	n := &model.Notification{
		RecipientID:   recipient,
		RecipientRole: role,
		Type:          model.NotificationReservationStatus,
		Title:         "Reservation " + verb,
		Message:       fmt.Sprintf("Reservation %s was %s.", res.Reference, verb),
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.logger.Errorf("notify %d of %s: %v", recipient, res.Reference, err)
	}
	for _, party := range []uint64{res.ConsumerID, res.OperatorID} {
		if err := s.Notifier.PushTo(ctx, party, eventUpdateReservation, res); err != nil {
			s.logger.Warnf("push update of %s to %d: %v", res.Reference, party, err)
		}
	}
	if err := s.Notifier.Broadcast(ctx, eventUpdateReservation, publicUpdate(res)); err != nil {
		s.logger.Warnf("broadcast update of %s: %v", res.Reference, err)
	}
	if res.PropertyType.CapacityConstrained() {
		upd := CapacityUpdate{PropertyID: res.PropertyID, Units: res.Units, Delta: res.TotalUnits()}
		if err := s.Notifier.Broadcast(ctx, eventStayCapacity, upd); err != nil {
			s.logger.Warnf("broadcast capacity for property %d: %v", res.PropertyID, err)
		}
	}
}

// GetByID returns a reservation the actor is party to.  Reservations of
// other actors are reported as not found.
func (s *ReservationService) GetByID(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error) {
	res, err := s.Reservations.GetByID(ctx, id)
	return s.visible(res, err, actor)
}

// GetByReference looks a reservation up by its reference code.
func (s *ReservationService) GetByReference(ctx context.Context, actor model.Actor, reference string) (*model.Reservation, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, apperror.BadRequest("reference is required")
	}
	res, err := s.Reservations.GetByReference(ctx, reference)
	return s.visible(res, err, actor)
}

func (s *ReservationService) visible(res *model.Reservation, err error, actor model.Actor) (*model.Reservation, error) {
	if errors.Is(err, repository.ErrReservationNotFound) || (err == nil && !res.InvolvesActor(actor)) {
		return nil, apperror.NotFound("reservation not found")
	}
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// ListForConsumer returns the consumer's reservations, newest first.
func (s *ReservationService) ListForConsumer(ctx context.Context, actor model.Actor) ([]*model.Reservation, error) {
	if actor.Role != model.RoleConsumer {
		return nil, apperror.Authorization("only consumers have consumer reservations")
	}
	list, err := s.Reservations.ListByConsumer(ctx, actor.ID)
	return list, classify(err)
}

// ListForOperator returns reservations on the operator's properties.
func (s *ReservationService) ListForOperator(ctx context.Context, actor model.Actor) ([]*model.Reservation, error) {
	if actor.Role != model.RoleOperator {
		return nil, apperror.Authorization("only operators have property reservations")
	}
	list, err := s.Reservations.ListByOperator(ctx, actor.ID)
	return list, classify(err)
}

// Analytics aggregates the actor's own reservations per interval.
func (s *ReservationService) Analytics(ctx context.Context, aq model.AnalyticsQuery) ([]model.AnalyticsBucket, error) {
	if !aq.Interval.Valid() {
		return nil, apperror.BadRequest("interval must be daily, weekly or monthly")
	}
	if aq.From.IsZero() || aq.To.IsZero() || aq.To.Before(aq.From) {
		return nil, apperror.BadRequest("a valid from/to range is required")
	}
	if aq.PropertyType != nil && !aq.PropertyType.Valid() {
		return nil, apperror.BadRequest("unknown property type")
	}
	if !aq.Actor.Role.Valid() {
		return nil, apperror.Authorization("unknown actor")
	}
	buckets, err := s.Reservations.Analytics(ctx, aq)
	return buckets, classify(err)
}
