// Package policy computes cancellation settlements.
package policy

import (
	"math"
	"time"

	"github.com/iliyamo/reservation-engine/internal/model"
)

// Settlement splits a cancelled booking's price into the part returned to
// the payer and the part kept as a penalty.  The two always sum to the price.
type Settlement struct {
	RefundAmount  int64 `json:"refund_amount"`
	PenaltyAmount int64 `json:"penalty_amount"`
}

// Evaluate applies p to a cancellation made daysRemaining days before
// check-in.  Without a policy, or at or beyond the threshold, everything is
// refunded.  Below it the refund is price × fraction rounded down.
func Evaluate(price int64, p *model.CancellationPolicy, daysRemaining int) Settlement {
	if price <= 0 {
		return Settlement{}
	}
	if p == nil || daysRemaining >= p.DaysBeforeCheckIn {
		return Settlement{RefundAmount: price}
	}
	fraction := math.Min(math.Max(p.RefundableFraction, 0), 1)
	// whole basis points keep the multiplication in integers; truncating
	// them never lets the refund exceed price × fraction
	bp := int64(math.Floor(fraction*10000 + 1e-6))
	refund := price * bp / 10000
	return Settlement{RefundAmount: refund, PenaltyAmount: price - refund}
}

// DaysUntil returns the whole days from now until checkIn, rounded down.
// Past check-ins give a negative count.
func DaysUntil(now, checkIn time.Time) int {
	return int(math.Floor(checkIn.Sub(now).Hours() / 24))
}
