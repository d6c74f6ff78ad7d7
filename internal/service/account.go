package service

import (
	"context"
	"strings"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
)

// AccountSettings reads accounts and updates their payout and cancellation
// settings.
type AccountSettings interface {
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
	SetRecipientCode(ctx context.Context, accountID uint64, code string) error
	SetCancellationPolicy(ctx context.Context, accountID uint64, p model.CancellationPolicy) error
}

// PaymentActions are the consumer- and operator-initiated gateway calls
// that happen outside a booking.
type PaymentActions interface {
	InitiateCharge(ctx context.Context, email string, amount int64) (*payment.Initiation, error)
	SubmitChargeStep(ctx context.Context, step payment.ChargeStep, reference, value string) (payment.ChargeOutcome, error)
	RegisterRecipient(ctx context.Context, b payment.BankDetails) (string, error)
}

// AccountService manages payout registration, the operator's default
// cancellation policy and payment initiation.
type AccountService struct {
	accounts AccountSettings
	payments PaymentActions
	logger   logging.Logger
}

func NewAccountService(accounts AccountSettings, payments PaymentActions, logger logging.Logger) *AccountService {
	return &AccountService{accounts: accounts, payments: payments, logger: logger}
}

func (s *AccountService) load(ctx context.Context, actor model.Actor) (*model.Account, error) {
	acc, err := s.accounts.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, classify(err)
	}
	if acc.Role != actor.Role {
		return nil, apperror.Authorization("token role does not match the account")
	}
	return acc, nil
}

// RegisterPayoutAccount registers the operator's bank account with the
// gateway and stores the returned recipient code.
func (s *AccountService) RegisterPayoutAccount(ctx context.Context, actor model.Actor, b payment.BankDetails) (string, error) {
	if actor.Role != model.RoleOperator {
		return "", apperror.Authorization("only operators receive payouts")
	}
	if _, err := s.load(ctx, actor); err != nil {
		return "", err
	}
	code, err := s.payments.RegisterRecipient(ctx, b)
	if err != nil {
		return "", err
	}
	if err := s.accounts.SetRecipientCode(ctx, actor.ID, code); err != nil {
		return "", classify(err)
	}
	s.logger.Infof("operator %d registered payout recipient %s", actor.ID, code)
	return code, nil
}

// SetCancellationPolicy replaces the operator's default policy.  Properties
// with their own policy are unaffected.
func (s *AccountService) SetCancellationPolicy(ctx context.Context, actor model.Actor, p model.CancellationPolicy) error {
	if actor.Role != model.RoleOperator {
		return apperror.Authorization("only operators set cancellation policies")
	}
	if err := p.Validate(); err != nil {
		return apperror.BadRequest(err.Error())
	}
	if _, err := s.load(ctx, actor); err != nil {
		return err
	}
	return classify(s.accounts.SetCancellationPolicy(ctx, actor.ID, p))
}

// InitiatePayment opens a fresh card payment for the consumer's email.
func (s *AccountService) InitiatePayment(ctx context.Context, actor model.Actor, amount int64) (*payment.Initiation, error) {
	if actor.Role != model.RoleConsumer {
		return nil, apperror.Authorization("only consumers make payments")
	}
	acc, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.payments.InitiateCharge(ctx, acc.Email, amount)
}

// SubmitChargeStep forwards a follow-up value (otp, pin, phone, birthday)
// for a pending charge.
func (s *AccountService) SubmitChargeStep(ctx context.Context, actor model.Actor, step payment.ChargeStep, reference, value string) (payment.ChargeOutcome, error) {
	if actor.Role != model.RoleConsumer {
		return nil, apperror.Authorization("only consumers make payments")
	}
	if !step.Valid() {
		return nil, apperror.BadRequest("step must be otp, pin, phone or birthday")
	}
	return s.payments.SubmitChargeStep(ctx, step, strings.TrimSpace(reference), value)
}
