package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/reservation-engine/internal/database"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/policy"
	"github.com/iliyamo/reservation-engine/internal/queue"
	"github.com/iliyamo/reservation-engine/internal/realtime"
	"github.com/iliyamo/reservation-engine/internal/repository"
)

const (
	eventNewReservation    = realtime.EventNewReservation
	eventUpdateReservation = realtime.EventUpdateReservation
	eventStayCapacity      = realtime.EventStayCapacity
)

// refundCompensation undoes a captured payment when the booking unit does
// not commit.  A refund that fails is queued for retry and still reported
// to the transactor.  A payment that a committed reservation holds is left
// alone; losing the race for a payment reference must not refund the
// winner's booking.
func (s *ReservationService) refundCompensation(res *model.Reservation, reference string) database.Compensation {
	return func(ctx context.Context) error {
		if owner, err := s.Reservations.GetByPaymentRef(ctx, reference); err == nil {
			s.logger.Warnf("booking rolled back, payment %s stays with reservation %s", reference, owner.Reference)
			return nil
		} else if !errors.Is(err, repository.ErrReservationNotFound) {
			s.logger.Errorf("look up owner of payment %s: %v", reference, err)
		}
		s.logger.Warnf("booking rolled back, refunding payment %s", reference)
		if err := s.Gateway.Refund(ctx, reference, 0); err != nil {
			s.enqueue(ctx, queue.SettlementTask{
				Kind:          queue.SettlementRefund,
				ReservationID: res.ID,
				Reference:     reference,
				Reason:        "booking rolled back",
			})
			return fmt.Errorf("refund %s: %w", reference, err)
		}
		return nil
	}
}

// refundOrQueue refunds amount (0 = all) of reference, queueing a retry on
// failure.  It never fails the caller.
func (s *ReservationService) refundOrQueue(ctx context.Context, res *model.Reservation, reference string, amount int64, reason string) bool {
	ctx, cancel := s.detached(ctx)
	defer cancel()
	if err := s.Gateway.Refund(ctx, reference, amount); err != nil {
		s.logger.Errorf("refund %d on %s (%s) failed, queued for retry: %v", amount, reference, reason, err)
		s.enqueue(ctx, queue.SettlementTask{
			Kind:          queue.SettlementRefund,
			ReservationID: res.ID,
			Reference:     reference,
			Amount:        amount,
			Reason:        reason,
		})
		return false
	}
	return true
}

func (s *ReservationService) enqueue(ctx context.Context, task queue.SettlementTask) {
	if s.Settlements == nil {
		s.logger.Errorf("no settlement queue, %s of %d for reservation %d needs manual settlement", task.Kind, task.Amount, task.ReservationID)
		return
	}
	if err := s.Settlements.Enqueue(ctx, task); err != nil {
		s.logger.Errorf("enqueue %s for reservation %d: %v; needs manual settlement", task.Kind, task.ReservationID, err)
	}
}

// cancellationPolicy returns the property's policy, or the operator's
// default when the property has none.
func (s *ReservationService) cancellationPolicy(ctx context.Context, res *model.Reservation) (*model.CancellationPolicy, *model.Account) {
	var pol *model.CancellationPolicy
	if p, err := s.Properties.GetByID(ctx, res.PropertyID); err == nil {
		pol = p.CancellationPolicy
	} else {
		s.logger.Warnf("load property %d for cancellation policy: %v", res.PropertyID, err)
	}
	operator, err := s.Accounts.GetByID(ctx, res.OperatorID)
	if err != nil {
		s.logger.Warnf("load operator %d for cancellation: %v", res.OperatorID, err)
		return pol, nil
	}
	if pol == nil {
		pol = operator.CancellationPolicy
	}
	return pol, operator
}

// settleCancellation refunds the consumer and, for proxy-paid bookings,
// pays the penalty to the operator.  Gateway failures are queued, never
// returned: the cancellation has already committed.
func (s *ReservationService) settleCancellation(ctx context.Context, res *model.Reservation, by model.Actor) *policy.Settlement {
	if res.PaymentRef == nil || res.Price <= 0 {
		return nil
	}
	ctx, cancel := s.detached(ctx)
	defer cancel()

	pol, operator := s.cancellationPolicy(ctx, res)
	var st policy.Settlement
	if by.Role == model.RoleOperator {
		// operator-initiated cancellations are never penalised
		st = policy.Settlement{RefundAmount: res.Price}
	} else {
		st = policy.Evaluate(res.Price, pol, policy.DaysUntil(s.now(), res.CheckIn()))
	}

	st = capToCaptured(st, res)

	ref := *res.PaymentRef
	if st.RefundAmount > 0 {
		if s.refundOrQueue(ctx, res, ref, st.RefundAmount, "reservation cancelled") {
			s.logger.Infof("refunded %d of %s for cancelled reservation %s", st.RefundAmount, ref, res.Reference)
		}
	}

	if st.PenaltyAmount > 0 {
		switch {
		case !res.ProxyPayment:
			s.logger.Infof("penalty %d on %s retained with the original payment for out-of-band settlement", st.PenaltyAmount, res.Reference)
		case operator == nil || operator.RecipientCode == nil:
			s.logger.Errorf("operator %d has no payout recipient; penalty %d on %s needs manual settlement", res.OperatorID, st.PenaltyAmount, res.Reference)
		default:
			s.payPenalty(ctx, res, *operator.RecipientCode, st.PenaltyAmount)
		}
	}

	n := &model.Notification{
		RecipientID:   res.ConsumerID,
		RecipientRole: model.RoleConsumer,
		Type:          model.NotificationSettlement,
		Title:         "Cancellation refund",
		Message:       fmt.Sprintf("Reservation %s: %d will be refunded, %d retained.", res.Reference, st.RefundAmount, st.PenaltyAmount),
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		s.logger.Errorf("notify consumer %d of settlement: %v", res.ConsumerID, err)
	}
	return &st
}

// capToCaptured limits a settlement to what the payment reference actually
// captured.  A non-proxy reference can settle less than the price; the
// refund never exceeds the capture and the penalty is what remains of it.
func capToCaptured(st policy.Settlement, res *model.Reservation) policy.Settlement {
	if res.PaymentAuth == nil || res.PaymentAuth.Amount <= 0 {
		return st
	}
	captured := res.PaymentAuth.Amount
	if st.RefundAmount+st.PenaltyAmount <= captured {
		return st
	}
	refund := min(st.RefundAmount, captured)
	return policy.Settlement{RefundAmount: refund, PenaltyAmount: captured - refund}
}

func (s *ReservationService) payPenalty(ctx context.Context, res *model.Reservation, recipient string, amount int64) {
	p := payment.Payout{
		Recipient: recipient,
		Amount:    amount,
		Reason:    "Cancellation penalty for " + res.Reference,
		Reference: uuid.NewString(),
	}
	if _, err := s.Gateway.PayRecipient(ctx, p); err != nil {
		s.logger.Errorf("penalty payout %d for %s failed, queued for retry: %v", amount, res.Reference, err)
		s.enqueue(ctx, queue.SettlementTask{
			Kind:           queue.SettlementPayout,
			ReservationID:  res.ID,
			Recipient:      recipient,
			Amount:         amount,
			Reason:         p.Reason,
			IdempotencyKey: p.Reference,
		})
		return
	}
	s.logger.Infof("paid penalty %d for %s to %s", amount, res.Reference, recipient)
}
