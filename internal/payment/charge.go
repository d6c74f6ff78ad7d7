package payment

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/iliyamo/reservation-engine/internal/apperror"
)

// OutcomeTag is the stable name of a charge state.
type OutcomeTag string

const (
	OutcomePending          OutcomeTag = "pending"
	OutcomeSuccess          OutcomeTag = "success"
	OutcomeOTPRequired      OutcomeTag = "requires-otp"
	OutcomePINRequired      OutcomeTag = "requires-pin"
	OutcomeRedirectRequired OutcomeTag = "requires-redirect"
	OutcomePhoneRequired    OutcomeTag = "requires-phone"
	OutcomeBirthdayRequired OutcomeTag = "requires-birthday"
)

// ChargeOutcome is the non-failed result of a charge.  The concrete types
// below each carry only what their state needs.  A failed charge is an
// error, not an outcome.
type ChargeOutcome interface {
	Tag() OutcomeTag
	Reference() string
	Message() string
}

// ChargeRef carries the gateway reference and is embedded by every outcome.
type ChargeRef struct {
	Ref string
}

func (c ChargeRef) Reference() string { return c.Ref }

type Pending struct{ ChargeRef }

func (Pending) Tag() OutcomeTag { return OutcomePending }
func (Pending) Message() string { return "Payment is pending" }

type Succeeded struct {
	ChargeRef
	Amount int64
}

func (Succeeded) Tag() OutcomeTag { return OutcomeSuccess }
func (Succeeded) Message() string { return "Payment successful" }

type OTPRequired struct{ ChargeRef }

func (OTPRequired) Tag() OutcomeTag { return OutcomeOTPRequired }
func (OTPRequired) Message() string { return "OTP required" }

type PINRequired struct{ ChargeRef }

func (PINRequired) Tag() OutcomeTag { return OutcomePINRequired }
func (PINRequired) Message() string { return "PIN required" }

// RedirectRequired asks the payer to finish on URL.
type RedirectRequired struct {
	ChargeRef
	URL string
}

func (RedirectRequired) Tag() OutcomeTag { return OutcomeRedirectRequired }
func (RedirectRequired) Message() string { return "Open the URL to complete payment" }

type PhoneRequired struct{ ChargeRef }

func (PhoneRequired) Tag() OutcomeTag { return OutcomePhoneRequired }
func (PhoneRequired) Message() string { return "Phone number required" }

type BirthdayRequired struct{ ChargeRef }

func (BirthdayRequired) Tag() OutcomeTag { return OutcomeBirthdayRequired }
func (BirthdayRequired) Message() string { return "Birthday required" }

// OutcomeView is the JSON shape of an outcome.
type OutcomeView struct {
	Reference        string     `json:"reference"`
	Status           OutcomeTag `json:"status"`
	Message          string     `json:"message"`
	AuthorizationURL string     `json:"authorization_url,omitempty"`
	Amount           int64      `json:"amount,omitempty"`
}

// View flattens o for responses.
func View(o ChargeOutcome) OutcomeView {
	v := OutcomeView{Reference: o.Reference(), Status: o.Tag(), Message: o.Message()}
	switch t := o.(type) {
	case RedirectRequired:
		v.AuthorizationURL = t.URL
	case Succeeded:
		v.Amount = t.Amount
	}
	return v
}

type chargeData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	URL       string `json:"url"`
}

// outcome maps a processor status onto an outcome.  "failed" and anything
// unrecognised are declines.
func (d chargeData) outcome() (ChargeOutcome, error) {
	ref := ChargeRef{Ref: d.Reference}
	switch d.Status {
	case "pending":
		return Pending{ref}, nil
	case "success":
		return Succeeded{ChargeRef: ref, Amount: d.Amount}, nil
	case "send_otp":
		return OTPRequired{ref}, nil
	case "send_pin":
		return PINRequired{ref}, nil
	case "open_url":
		return RedirectRequired{ChargeRef: ref, URL: d.URL}, nil
	case "send_phone":
		return PhoneRequired{ref}, nil
	case "send_birthday":
		return BirthdayRequired{ref}, nil
	}
	return nil, apperror.Authorization("could not charge card")
}

// ChargeRequest charges a saved authorization.  IdempotencyKey is optional;
// when empty a fresh key is generated for this logical charge.
type ChargeRequest struct {
	AuthorizationCode string
	Email             string
	Amount            int64
	IdempotencyKey    string
}

// ChargeSavedAuthorization charges a stored card.  The idempotency key is
// sent as the transaction reference on every attempt, so a retried request
// is deduplicated by the processor.  Declines and amount mismatches are
// returned immediately.
func (g *Gateway) ChargeSavedAuthorization(ctx context.Context, req ChargeRequest) (ChargeOutcome, error) {
	if req.AuthorizationCode == "" || strings.TrimSpace(req.Email) == "" {
		return nil, apperror.BadRequest("authorization code and email are required")
	}
	if req.Amount <= 0 {
		return nil, apperror.BadRequest("amount must be positive")
	}
	key := req.IdempotencyKey
	if key == "" {
		key = g.newKey()
	}
	body := map[string]any{
		"authorization_code": req.AuthorizationCode,
		"email":              req.Email,
		"amount":             strconv.FormatInt(req.Amount, 10),
		"reference":          key,
	}

	var outcome ChargeOutcome
	err := g.retry(ctx, "charge "+key, func() error {
		var data chargeData
		if err := g.call(ctx, http.MethodPost, "charge", body, &data); err != nil {
			return err
		}
		o, err := data.outcome()
		if err != nil {
			return err
		}
		if s, ok := o.(Succeeded); ok && s.Amount != req.Amount {
			ref := s.Reference()
			if ref == "" {
				ref = key
			}
			return amountMismatch("amount charged does not match", ref, req.Amount, s.Amount)
		}
		outcome = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.logger.Infof("charge %s: %s", key, outcome.Tag())
	return outcome, nil
}

// ChargeStep is a follow-up the processor may ask for after a charge.
type ChargeStep string

const (
	StepOTP      ChargeStep = "otp"
	StepPIN      ChargeStep = "pin"
	StepPhone    ChargeStep = "phone"
	StepBirthday ChargeStep = "birthday"
)

// Valid reports whether s is a known step.
func (s ChargeStep) Valid() bool {
	switch s {
	case StepOTP, StepPIN, StepPhone, StepBirthday:
		return true
	}
	return false
}

// SubmitChargeStep sends the requested follow-up value for a pending charge
// and returns the next outcome, which may ask for another step.
func (g *Gateway) SubmitChargeStep(ctx context.Context, step ChargeStep, reference, value string) (ChargeOutcome, error) {
	if !step.Valid() {
		return nil, apperror.BadRequest("unknown charge step")
	}
	if reference == "" || strings.TrimSpace(value) == "" {
		return nil, apperror.BadRequest("reference and value are required")
	}
	body := map[string]any{"reference": reference, string(step): value}
	var data chargeData
	if err := g.call(ctx, http.MethodPost, "charge/submit_"+string(step), body, &data); err != nil {
		return nil, err
	}
	return data.outcome()
}
