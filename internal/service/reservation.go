// Package service holds the reservation state machine.  It coordinates the
// payment gateway, the inventory ledger and the stores inside one unit of
// work, then fans out notifications once the unit has committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/repository"
	"github.com/iliyamo/reservation-engine/internal/utils"
)

// PaymentMode selects how a booking is paid.
type PaymentMode string

const (
	PaymentSavedAuthorization PaymentMode = "saved_authorization"
	PaymentReference          PaymentMode = "reference"
	PaymentNone               PaymentMode = "none"
)

// CreateRequest is a validated booking request from the transport layer.
type CreateRequest struct {
	ConsumerID       uint64
	PropertyID       uint64
	PropertyType     model.PropertyType
	Schedule         model.Schedule
	Units            []model.UnitSelection
	Guests           model.GuestCount
	Price            int64
	Requests         []string
	PaymentMode      PaymentMode
	PaymentReference string
	ProxyPayment     bool
	IsAgent          bool
	GuestName        string
	GuestEmail       string
}

// Deps are the collaborators of ReservationService.
type Deps struct {
	Reservations ReservationStore
	Accounts     AccountStore
	Properties   PropertyStore
	Inventory    Inventory
	Gateway      Gateway
	Notifier     Notifier
	Settlements  SettlementQueue
	Tx           database.Transactor
}

// ReservationService is the reservation state machine.
type ReservationService struct {
	Deps
	logger        logging.Logger
	now           func() time.Time
	newReference  func() (string, error)
	notifyTimeout time.Duration
}

// NewReservationService wires the state machine.
func NewReservationService(deps Deps, logger logging.Logger) *ReservationService {
	return &ReservationService{
		Deps:          deps,
		logger:        logger,
		now:           time.Now,
		newReference:  utils.NewReservationReference,
		notifyTimeout: 10 * time.Second,
	}
}

// ActionRequiredError is returned when a saved-card charge needs a
// follow-up step (OTP, PIN, redirect, ...) before it settles.  The booking
// is not created; the client completes the step and books again with the
// charge reference.
type ActionRequiredError struct {
	Outcome payment.ChargeOutcome
}

func (e *ActionRequiredError) Error() string {
	return "payment requires further action: " + e.Outcome.Message()
}

const maxReferenceAttempts = 3

func (s *ReservationService) validate(req CreateRequest) error {
	if req.ConsumerID == 0 || req.PropertyID == 0 {
		return apperror.BadRequest("consumer and property are required")
	}
	if !req.PropertyType.Valid() {
		return apperror.BadRequest("unknown property type")
	}
	if err := req.Schedule.Validate(); err != nil {
		return apperror.BadRequest(err.Error())
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if req.Schedule.CheckInDay.Before(today) {
		return apperror.BadRequest("check-in day is in the past")
	}
	if req.Guests.Adults < 0 || req.Guests.Children < 0 {
		return apperror.BadRequest("guest counts must not be negative")
	}
	if req.Price < 0 {
		return apperror.BadRequest("price must not be negative")
	}
	if req.PropertyType.CapacityConstrained() {
		if req.Price <= 0 {
			return apperror.BadRequest("price is required for this property type")
		}
		if len(req.Units) == 0 {
			return apperror.BadRequest("at least one unit must be selected")
		}
		for _, u := range req.Units {
			if u.Quantity <= 0 {
				return apperror.BadRequest("unit quantity must be positive")
			}
		}
	} else if len(req.Units) > 0 {
		return apperror.BadRequest("units can only be selected for stays")
	}

	switch req.PaymentMode {
	case PaymentNone:
		if req.Price > 0 {
			return apperror.BadRequest("payment is required for a priced booking")
		}
		if req.ProxyPayment {
			return apperror.BadRequest("proxy payment requires a payment")
		}
	case PaymentReference:
		if strings.TrimSpace(req.PaymentReference) == "" {
			return apperror.BadRequest("payment reference is required")
		}
	case PaymentSavedAuthorization:
		if req.Price <= 0 {
			return apperror.BadRequest("price is required to charge a saved card")
		}
	default:
		return apperror.BadRequest("unknown payment mode")
	}

	if req.IsAgent {
		if strings.TrimSpace(req.GuestName) == "" || strings.TrimSpace(req.GuestEmail) == "" {
			return apperror.BadRequest("guest name and email are required for agent bookings")
		}
		if _, err := mail.ParseAddress(req.GuestEmail); err != nil {
			return apperror.BadRequest("guest email is invalid")
		}
	}
	return nil
}

// CreateReservation books, pays and persists a reservation as one unit.  If
// any step fails, inventory and the reservation row are rolled back and a
// payment already captured in this attempt is refunded.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	consumer, err := s.Accounts.GetByID(ctx, req.ConsumerID)
	if err != nil {
		return nil, classify(err)
	}
	if consumer.Role != model.RoleConsumer {
		return nil, apperror.Authorization("only consumers can make reservations")
	}
	property, err := s.Properties.GetByID(ctx, req.PropertyID)
	if err != nil {
		return nil, classify(err)
	}
	if property.Type != req.PropertyType {
		return nil, apperror.BadRequest("property type does not match the property")
	}

	var saved *model.PaymentAuthorization
	if req.PaymentMode == PaymentSavedAuthorization {
		if consumer.PaymentAuth == nil || consumer.PaymentAuth.AuthorizationCode == "" {
			return nil, apperror.BadRequest("no saved payment method")
		}
		if consumer.PaymentAuth.Expired(s.now()) {
			return nil, apperror.Authorization("saved payment method has expired")
		}
		saved = consumer.PaymentAuth
	}

	res := &model.Reservation{
		ConsumerID:   consumer.ID,
		OperatorID:   property.OperatorID,
		PropertyID:   property.ID,
		PropertyType: property.Type,
		Units:        req.Units,
		Schedule:     req.Schedule,
		Guests:       req.Guests,
		Price:        req.Price,
		Status:       model.StatusRequested,
		Requests:     req.Requests,
		ProxyPayment: req.ProxyPayment,
		IsAgent:      req.IsAgent,
	}
	if req.IsAgent {
		res.GuestName = strings.TrimSpace(req.GuestName)
		res.GuestEmail = strings.TrimSpace(req.GuestEmail)
	}

	err = s.Tx.WithinTx(ctx, func(ctx context.Context, tx *database.Tx) error {
		capacity := res.PropertyType.CapacityConstrained()
		// Fail on availability before any money moves.
		if capacity {
			if err := s.Inventory.Check(ctx, tx, res.PropertyID, res.Units); err != nil {
				return err
			}
		}
		if err := s.resolvePayment(ctx, tx, req, consumer, saved, res); err != nil {
			return err
		}
		if capacity {
			if err := s.Inventory.Reserve(ctx, tx, res.PropertyID, res.Units); err != nil {
				return err
			}
		}
		res.Status = model.StatusConfirmed
		return s.insert(ctx, tx, res)
	})
	if err != nil {
		return nil, classify(err)
	}

	s.logger.Infof("reservation %s confirmed for consumer %d on property %d", res.Reference, res.ConsumerID, res.PropertyID)
	s.afterCreate(ctx, res)
	return res, nil
}

// resolvePayment verifies or charges, and registers a refund with tx for
// any payment it captures.
func (s *ReservationService) resolvePayment(ctx context.Context, tx *database.Tx, req CreateRequest, consumer *model.Account, saved *model.PaymentAuthorization, res *model.Reservation) error {
	switch req.PaymentMode {
	case PaymentReference:
		ref := strings.TrimSpace(req.PaymentReference)
		if err := s.paymentRefFree(ctx, ref); err != nil {
			return err
		}
		var expect *payment.ProxyExpectation
		if req.ProxyPayment {
			expect = &payment.ProxyExpectation{Amount: req.Price}
		}
		v, err := s.Gateway.VerifyReference(ctx, ref, expect)
		if errors.Is(err, payment.ErrAmountMismatch) {
			// the consumer did pay, just not the right amount
			s.refundOrQueue(ctx, res, ref, 0, "amount mismatch")
			return err
		}
		if err != nil {
			return err
		}
		tx.OnRollback(s.refundCompensation(res, ref))
		res.PaymentRef = &ref
		auth := v.Authorization
		res.PaymentAuth = &auth
		if auth.Reusable && auth.AuthorizationCode != "" {
			if auth.Email == "" {
				auth.Email = consumer.Email
			}
			if err := s.Accounts.SavePaymentAuthTx(ctx, tx, consumer.ID, auth); err != nil {
				return fmt.Errorf("save payment authorization: %w", err)
			}
		}
		return nil

	case PaymentSavedAuthorization:
		email := saved.Email
		if email == "" {
			email = consumer.Email
		}
		outcome, err := s.Gateway.ChargeSavedAuthorization(ctx, payment.ChargeRequest{
			AuthorizationCode: saved.AuthorizationCode,
			Email:             email,
			Amount:            req.Price,
		})
		var mismatch *payment.AmountMismatchError
		if errors.As(err, &mismatch) {
			s.refundOrQueue(ctx, res, mismatch.Reference, 0, "amount mismatch")
			return err
		}
		if err != nil {
			return err
		}
		if _, ok := outcome.(payment.Succeeded); !ok {
			are := &ActionRequiredError{Outcome: outcome}
			return apperror.Wrap(apperror.KindBadRequest, are.Error(), are)
		}
		ref := outcome.Reference()
		tx.OnRollback(s.refundCompensation(res, ref))
		res.PaymentRef = &ref
		snapshot := *saved
		snapshot.Amount = req.Price
		res.PaymentAuth = &snapshot
		return nil
	}
	return nil
}

// paymentRefFree rejects a payment reference that already funds a booking.
// The unique key on payment_ref backs this check against concurrent claims.
func (s *ReservationService) paymentRefFree(ctx context.Context, ref string) error {
	owner, err := s.Reservations.GetByPaymentRef(ctx, ref)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Warnf("payment reference %s already funds reservation %s", ref, owner.Reference)
	return apperror.Wrap(apperror.KindConflict, "payment reference has already been used", repository.ErrPaymentReferenceUsed)
}

// insert assigns a fresh reference and writes res, regenerating the
// reference on a collision.
func (s *ReservationService) insert(ctx context.Context, q database.Querier, res *model.Reservation) error {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		ref, err := s.newReference()
		if err != nil {
			return fmt.Errorf("generate reference: %w", err)
		}
		res.Reference = ref
		err = s.Reservations.CreateTx(ctx, q, res)
		if !errors.Is(err, repository.ErrDuplicateReference) {
			return err
		}
		s.logger.Warnf("reservation reference %s collided, regenerating", ref)
	}
	return errors.New("could not allocate a unique reservation reference")
}

// CapacityUpdate is the stay_acc payload: units taken (negative Delta) or
// returned (positive Delta) on a property.
type CapacityUpdate struct {
	PropertyID uint64                `json:"property_id"`
	Units      []model.UnitSelection `json:"units"`
	Delta      int                   `json:"delta"`
}

func (s *ReservationService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
}

// afterCreate notifies the operator.  Failures are logged only; the booking
// has committed.
func (s *ReservationService) afterCreate(ctx context.Context, res *model.Reservation) {
	ctx, cancel := s.detached(ctx)
	defer cancel()

	n := &model.Notification{
		RecipientID:   res.OperatorID,
		RecipientRole: model.RoleOperator,
		Type:          model.NotificationNewReservation,
		Title:         "New reservation",
		Message: fmt.Sprintf("Reservation %s was confirmed for %s %s.",
			res.Reference, res.CheckInDay.Format("2006-01-02"), res.CheckInTime),
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.logger.Errorf("notify operator %d of %s: %v", res.OperatorID, res.Reference, err)
	}
	if err := s.Notifier.PushTo(ctx, res.OperatorID, eventNewReservation, res); err != nil {
		s.logger.Warnf("push %s to operator %d: %v", res.Reference, res.OperatorID, err)
	}
	if res.PropertyType.CapacityConstrained() {
		upd := CapacityUpdate{PropertyID: res.PropertyID, Units: res.Units, Delta: -res.TotalUnits()}
		if err := s.Notifier.Broadcast(ctx, eventStayCapacity, upd); err != nil {
			s.logger.Warnf("broadcast capacity for property %d: %v", res.PropertyID, err)
		}
	}
}

// classify maps store sentinels onto error kinds.  Errors that already carry
// a kind pass through.
func classify(err error) error {
	var ae *apperror.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, repository.ErrReservationNotFound):
		return apperror.Wrap(apperror.KindNotFound, "reservation not found", err)
	case errors.Is(err, repository.ErrAccountNotFound):
		return apperror.Wrap(apperror.KindNotFound, "account not found", err)
	case errors.Is(err, repository.ErrPropertyNotFound):
		return apperror.Wrap(apperror.KindNotFound, "property not found", err)
	case errors.Is(err, repository.ErrUnitNotFound):
		return apperror.Wrap(apperror.KindNotFound, "unit not found", err)
	case errors.Is(err, repository.ErrPaymentReferenceUsed):
		return apperror.Wrap(apperror.KindConflict, "payment reference has already been used", err)
	case errors.Is(err, repository.ErrConflict):
		return apperror.Wrap(apperror.KindConflict, "reservation was modified concurrently", err)
	}
	return apperror.Wrap(apperror.KindInternal, "internal error", err)
}
