package model

import (
	"errors"
	"math"
	"time"
)

// PaymentAuthorization is the gateway-issued card authorization kept on the
// paying account and reused for later charges.
type PaymentAuthorization struct {
	AuthorizationCode string `json:"authorization_code"`
	CardType          string `json:"card_type,omitempty"`
	Last4             string `json:"last4,omitempty"`
	Bank              string `json:"bank,omitempty"`
	ExpMonth          int    `json:"exp_month"`
	ExpYear           int    `json:"exp_year"`
	Reusable          bool   `json:"reusable"`
	Email             string `json:"email"`
	Amount            int64  `json:"amount"`
}

// Expired reports whether the card expired before now's month.  A card
// expiring this month is still usable.
func (a PaymentAuthorization) Expired(now time.Time) bool {
	y, m := now.UTC().Year(), int(now.UTC().Month())
	return a.ExpYear < y || (a.ExpYear == y && a.ExpMonth < m)
}

// CancellationPolicy states the refundable fraction of the price when a
// booking is cancelled fewer than DaysBeforeCheckIn days ahead.
type CancellationPolicy struct {
	DaysBeforeCheckIn  int     `json:"days_before_checkin"`
	RefundableFraction float64 `json:"refundable_fraction"`
}

// Validate enforces a non-negative threshold and a fraction in [0,1] with at
// most four decimal places, the precision the fraction is stored at.
func (p CancellationPolicy) Validate() error {
	if p.DaysBeforeCheckIn < 0 {
		return errors.New("days before check-in must not be negative")
	}
	if p.RefundableFraction < 0 || p.RefundableFraction > 1 {
		return errors.New("refundable fraction must be between 0 and 1")
	}
	bp := p.RefundableFraction * 10000
	if math.Abs(bp-math.Round(bp)) > 1e-6 {
		return errors.New("refundable fraction allows at most four decimal places")
	}
	return nil
}
