package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
	"github.com/iliyamo/reservation-engine/internal/queue"
	"github.com/iliyamo/reservation-engine/internal/repository"
)

func succeeded(ref string, amount int64) payment.Succeeded {
	return payment.Succeeded{ChargeRef: payment.ChargeRef{Ref: ref}, Amount: amount}
}

func TestCreateAndCancelOutsideThreshold(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)
	ctx := context.Background()

	res, err := h.svc.CreateReservation(ctx, stayRequest(2, 20000, 10))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.Status)
	assert.Regexp(t, `^RSV-[A-Z2-9]{10}$`, res.Reference)
	require.NotNil(t, res.PaymentRef)
	assert.Equal(t, "ref_ok", *res.PaymentRef)
	assert.Equal(t, uint64(operatorID), res.OperatorID)
	assert.Equal(t, initialUnit-2, h.w.available(unitID))

	consumer, err := accountStore{h.w}.GetByID(ctx, consumerID)
	require.NoError(t, err)
	require.NotNil(t, consumer.PaymentAuth, "reusable authorization is saved")
	assert.Equal(t, "AUTH_ref_ok", consumer.PaymentAuth.AuthorizationCode)

	require.Len(t, h.notifier.forRecipient(operatorID), 1)
	require.Len(t, h.notifier.pushes, 1)
	assert.Equal(t, eventNewReservation, h.notifier.pushes[0].Event)
	require.Len(t, h.notifier.broadcasts, 1)
	assert.Equal(t, CapacityUpdate{PropertyID: propertyID, Units: res.Units, Delta: -2}, h.notifier.broadcasts[0].Payload)

	change, err := h.svc.UpdateStatus(ctx, res.ID, model.Actor{ID: consumerID, Role: model.RoleConsumer}, model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, change.Reservation.Status)
	require.NotNil(t, change.Settlement)
	assert.Equal(t, int64(20000), change.Settlement.RefundAmount)
	assert.Zero(t, change.Settlement.PenaltyAmount)

	assert.Equal(t, initialUnit, h.w.available(unitID))
	assert.Equal(t, []refundCall{{Reference: "ref_ok", Amount: 20000}}, h.gw.refunds)
	assert.Empty(t, h.gw.payouts)
	assert.Empty(t, h.settlements.tasks)

	stored, err := h.svc.GetByID(ctx, model.Actor{ID: operatorID, Role: model.RoleOperator}, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status)
	assert.Len(t, h.notifier.forRecipient(operatorID), 2)
}

func TestCreateInsufficientCapacityTouchesNothing(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)

	_, err := h.svc.CreateReservation(context.Background(), stayRequest(initialUnit+1, 20000, 10))
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))
	assert.Zero(t, h.gw.verifyCalls, "no payment is attempted")
	assert.Empty(t, h.gw.refunds)
	assert.Zero(t, h.w.count())
	assert.Equal(t, initialUnit, h.w.available(unitID))
	assert.Empty(t, h.notifier.notifications)
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"unknown property type", func(r *CreateRequest) { r.PropertyType = "CASTLE" }},
		{"bad clock", func(r *CreateRequest) { r.Schedule.CheckInTime = "2pm" }},
		{"inverted window", func(r *CreateRequest) { r.Schedule.CheckOutDay = r.Schedule.CheckInDay.AddDate(0, 0, -1) }},
		{"check-in in the past", func(r *CreateRequest) {
			r.Schedule.CheckInDay = testNow.AddDate(0, 0, -2)
			r.Schedule.CheckOutDay = testNow
		}},
		{"no units for a stay", func(r *CreateRequest) { r.Units = nil }},
		{"zero quantity", func(r *CreateRequest) { r.Units[0].Quantity = 0 }},
		{"missing reference", func(r *CreateRequest) { r.PaymentReference = " " }},
		{"unpaid priced booking", func(r *CreateRequest) { r.PaymentMode = PaymentNone }},
		{"agent without guest", func(r *CreateRequest) { r.IsAgent = true }},
		{"agent with bad email", func(r *CreateRequest) {
			r.IsAgent, r.GuestName, r.GuestEmail = true, "Ada", "not-an-email"
		}},
		{"type mismatch", func(r *CreateRequest) {
			r.PropertyType = model.PropertyRestaurant
			r.Units = nil
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.verifies("ref_ok", 20000)
			req := stayRequest(1, 20000, 10)
			tc.mutate(&req)
			_, err := h.svc.CreateReservation(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.KindBadRequest), "got %v", err)
			assert.Zero(t, h.w.count())
		})
	}
}

func TestCreateRestaurantWithoutPayment(t *testing.T) {
	h := newHarness()
	req := CreateRequest{
		ConsumerID:   consumerID,
		PropertyID:   4,
		PropertyType: model.PropertyRestaurant,
		Schedule:     scheduleIn(3),
		Guests:       model.GuestCount{Adults: 4},
		PaymentMode:  PaymentNone,
		Requests:     []string{"window seat"},
	}
	res, err := h.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.PaymentRef)
	assert.Empty(t, h.notifier.broadcasts, "no capacity broadcast for untracked types")
	assert.Equal(t, initialUnit, h.w.available(unitID))
}

func TestCreateRequiresConsumerAccount(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)
	req := stayRequest(1, 20000, 10)
	req.ConsumerID = operatorID

	_, err := h.svc.CreateReservation(context.Background(), req)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))

	req.ConsumerID = 404
	_, err = h.svc.CreateReservation(context.Background(), req)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCreateRefundsOnAmountMismatch(t *testing.T) {
	h := newHarness()
	h.verifies("ref_short", 15000)
	req := stayRequest(1, 20000, 10)
	req.PaymentReference = "ref_short"
	req.ProxyPayment = true

	_, err := h.svc.CreateReservation(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))
	assert.ErrorIs(t, err, payment.ErrAmountMismatch)
	assert.Equal(t, []refundCall{{Reference: "ref_short", Amount: 0}}, h.gw.refunds)
	assert.Zero(t, h.w.count())
	assert.Equal(t, initialUnit, h.w.available(unitID))
}

func TestCreateUnverifiedPaymentFails(t *testing.T) {
	h := newHarness()
	req := stayRequest(1, 20000, 10)
	req.PaymentReference = "ref_declined"

	_, err := h.svc.CreateReservation(context.Background(), req)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))
	assert.Empty(t, h.gw.refunds)
	assert.Zero(t, h.w.count())
}

func TestCreateRefundsWhenUnitFailsAfterPayment(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)
	h.w.failCreate = errors.New("disk full")

	_, err := h.svc.CreateReservation(context.Background(), stayRequest(2, 20000, 10))
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindInternal))
	assert.Equal(t, []refundCall{{Reference: "ref_ok", Amount: 0}}, h.gw.refunds)
	assert.Equal(t, initialUnit, h.w.available(unitID), "inventory rolled back")
	assert.Zero(t, h.w.count())

	consumer, _ := accountStore{h.w}.GetByID(context.Background(), consumerID)
	assert.Nil(t, consumer.PaymentAuth, "saved authorization rolled back")
}

func TestCreateQueuesRefundWhenCompensationFails(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)
	h.w.failCreate = errors.New("disk full")
	h.gw.refundErr = apperror.Upstream("gateway down", errors.New("503"))

	_, err := h.svc.CreateReservation(context.Background(), stayRequest(1, 20000, 10))
	require.Error(t, err)
	require.Len(t, h.settlements.tasks, 1)
	assert.Equal(t, queue.SettlementRefund, h.settlements.tasks[0].Kind)
	assert.Equal(t, "ref_ok", h.settlements.tasks[0].Reference)
}

func TestCreateWithSavedAuthorization(t *testing.T) {
	h := newHarness()
	h.w.accounts[consumerID].PaymentAuth = &model.PaymentAuthorization{
		AuthorizationCode: "AUTH_saved", ExpMonth: 1, ExpYear: 2030, Reusable: true,
	}
	h.gw.chargeOutcome = succeeded("chg_1", 20000)
	req := stayRequest(1, 20000, 10)
	req.PaymentMode = PaymentSavedAuthorization
	req.PaymentReference = ""

	res, err := h.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, h.gw.charges, 1)
	assert.Equal(t, "AUTH_saved", h.gw.charges[0].AuthorizationCode)
	assert.Equal(t, "guest@example.com", h.gw.charges[0].Email)
	assert.Equal(t, int64(20000), h.gw.charges[0].Amount)
	assert.Equal(t, "chg_1", *res.PaymentRef)
	assert.Equal(t, int64(20000), res.PaymentAuth.Amount)
}

func TestCreateWithExpiredAuthorization(t *testing.T) {
	h := newHarness()
	h.w.accounts[consumerID].PaymentAuth = &model.PaymentAuthorization{
		AuthorizationCode: "AUTH_old", ExpMonth: 12, ExpYear: 2020,
	}
	req := stayRequest(1, 20000, 10)
	req.PaymentMode = PaymentSavedAuthorization

	_, err := h.svc.CreateReservation(context.Background(), req)
	assert.True(t, apperror.Is(err, apperror.KindAuthorization))
	assert.Empty(t, h.gw.charges)
	assert.Equal(t, initialUnit, h.w.available(unitID))
}

func TestCreateWithoutSavedAuthorization(t *testing.T) {
	h := newHarness()
	req := stayRequest(1, 20000, 10)
	req.PaymentMode = PaymentSavedAuthorization

	_, err := h.svc.CreateReservation(context.Background(), req)
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))
}

func TestCreateChargeNeedsAction(t *testing.T) {
	h := newHarness()
	h.w.accounts[consumerID].PaymentAuth = &model.PaymentAuthorization{
		AuthorizationCode: "AUTH_saved", ExpMonth: 1, ExpYear: 2030,
	}
	h.gw.chargeOutcome = payment.OTPRequired{ChargeRef: payment.ChargeRef{Ref: "chg_otp"}}
	req := stayRequest(1, 20000, 10)
	req.PaymentMode = PaymentSavedAuthorization

	_, err := h.svc.CreateReservation(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))
	var are *ActionRequiredError
	require.ErrorAs(t, err, &are)
	assert.Equal(t, payment.OutcomeOTPRequired, are.Outcome.Tag())
	assert.Equal(t, "chg_otp", are.Outcome.Reference())
	assert.Empty(t, h.gw.refunds)
	assert.Zero(t, h.w.count())
}

func savedAuthMismatch(h *harness) CreateRequest {
	h.w.accounts[consumerID].PaymentAuth = &model.PaymentAuthorization{
		AuthorizationCode: "AUTH_saved", ExpMonth: 1, ExpYear: 2030, Reusable: true,
	}
	h.gw.chargeErr = apperror.Wrap(apperror.KindBadRequest, "amount charged does not match",
		&payment.AmountMismatchError{Reference: "chg_short", Expected: 1000, Got: 999})
	req := stayRequest(1, 1000, 10)
	req.PaymentMode = PaymentSavedAuthorization
	req.PaymentReference = ""
	return req
}

func TestCreateRefundsSavedChargeOnAmountMismatch(t *testing.T) {
	h := newHarness()
	req := savedAuthMismatch(h)

	_, err := h.svc.CreateReservation(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindBadRequest))
	assert.ErrorIs(t, err, payment.ErrAmountMismatch)
	assert.Equal(t, []refundCall{{Reference: "chg_short", Amount: 0}}, h.gw.refunds)
	assert.Empty(t, h.settlements.tasks)
	assert.Zero(t, h.w.count())
	assert.Equal(t, initialUnit, h.w.available(unitID))
}

func TestCreateQueuesSavedChargeRefundWhenGatewayDown(t *testing.T) {
	h := newHarness()
	req := savedAuthMismatch(h)
	h.gw.refundErr = apperror.Upstream("gateway down", errors.New("503"))

	_, err := h.svc.CreateReservation(context.Background(), req)
	require.Error(t, err)
	require.Len(t, h.settlements.tasks, 1)
	assert.Equal(t, queue.SettlementRefund, h.settlements.tasks[0].Kind)
	assert.Equal(t, "chg_short", h.settlements.tasks[0].Reference)
	assert.Zero(t, h.settlements.tasks[0].Amount)
}

func TestCreateRetriesReferenceCollision(t *testing.T) {
	h := newHarness()
	h.verifies("ref_a", 10000)
	h.verifies("ref_b", 10000)
	refs := []string{"RSV-AAAAAAAAAA", "RSV-AAAAAAAAAA", "RSV-BBBBBBBBBB"}
	h.svc.newReference = func() (string, error) {
		r := refs[0]
		refs = refs[1:]
		return r, nil
	}

	req := stayRequest(1, 10000, 10)
	req.PaymentReference = "ref_a"
	first, err := h.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	req.PaymentReference = "ref_b"
	second, err := h.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "RSV-AAAAAAAAAA", first.Reference)
	assert.Equal(t, "RSV-BBBBBBBBBB", second.Reference)
}

func TestPaymentReferenceFundsOneBooking(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)
	req := stayRequest(1, 20000, 10)
	req.ProxyPayment = true

	first, err := h.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)

	_, err = h.svc.CreateReservation(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
	assert.ErrorIs(t, err, repository.ErrPaymentReferenceUsed)
	assert.Equal(t, 1, h.gw.verifyCalls, "second attempt stops before the gateway")
	assert.Empty(t, h.gw.refunds, "first booking keeps its payment")
	assert.Equal(t, 1, h.w.count())
	assert.Equal(t, initialUnit-1, h.w.available(unitID))

	got, err := h.svc.GetByID(context.Background(), consumer, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestLosingPaymentReferenceRaceKeepsWinnersPayment(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)
	winner := "ref_ok"
	h.gw.onVerify = func(ref string) {
		h.w.mu.Lock()
		defer h.w.mu.Unlock()
		h.w.elsewhere[ref] = &model.Reservation{ID: 500, Reference: "RSV-WINNER0000", PaymentRef: &winner}
	}

	_, err := h.svc.CreateReservation(context.Background(), stayRequest(1, 20000, 10))
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
	assert.Empty(t, h.gw.refunds)
	assert.Empty(t, h.settlements.tasks)
	assert.Zero(t, h.w.count())
	assert.Equal(t, initialUnit, h.w.available(unitID))
}

func TestCreateSurvivesNotificationFailure(t *testing.T) {
	h := newHarness()
	h.verifies("ref_ok", 20000)
	h.notifier.failNotify = true

	res, err := h.svc.CreateReservation(context.Background(), stayRequest(1, 20000, 10))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.Status)
	assert.Len(t, h.notifier.pushes, 1, "live push still goes out")
}

func TestConcurrentBookingsNeverOversell(t *testing.T) {
	h := newHarness()
	for i := 0; i < 20; i++ {
		h.verifies(fmt.Sprintf("ref_%d", i), 10000)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	won, lost := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := stayRequest(1, 10000, 10)
			req.PaymentReference = fmt.Sprintf("ref_%d", i)
			_, err := h.svc.CreateReservation(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else {
				lost++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, initialUnit, won)
	assert.Equal(t, 20-initialUnit, lost)
	assert.Zero(t, h.w.available(unitID))
	assert.Equal(t, initialUnit, h.w.count())
}
