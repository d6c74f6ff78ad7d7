package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/reservation-engine/internal/model"
)

func TestEvaluate(t *testing.T) {
	half := &model.CancellationPolicy{DaysBeforeCheckIn: 3, RefundableFraction: 0.5}

	cases := []struct {
		name   string
		price  int64
		policy *model.CancellationPolicy
		days   int
		want   Settlement
	}{
		{"inside threshold", 10000, half, 1, Settlement{RefundAmount: 5000, PenaltyAmount: 5000}},
		{"outside threshold", 10000, half, 5, Settlement{RefundAmount: 10000}},
		{"at threshold", 10000, half, 3, Settlement{RefundAmount: 10000}},
		{"no policy", 10000, nil, 0, Settlement{RefundAmount: 10000}},
		{"floors odd price", 10001, half, 0, Settlement{RefundAmount: 5000, PenaltyAmount: 5001}},
		{"nothing refundable", 7000, &model.CancellationPolicy{DaysBeforeCheckIn: 2, RefundableFraction: 0}, 1, Settlement{PenaltyAmount: 7000}},
		{"fraction one", 7000, &model.CancellationPolicy{DaysBeforeCheckIn: 2, RefundableFraction: 1}, 1, Settlement{RefundAmount: 7000}},
		{"thirds floor", 100, &model.CancellationPolicy{DaysBeforeCheckIn: 2, RefundableFraction: 0.3333}, 1, Settlement{RefundAmount: 33, PenaltyAmount: 67}},
		{"sub basis point fraction floors", 10000, &model.CancellationPolicy{DaysBeforeCheckIn: 3, RefundableFraction: 0.33335}, 1, Settlement{RefundAmount: 3333, PenaltyAmount: 6667}},
		{"four decimals exact", 10000, &model.CancellationPolicy{DaysBeforeCheckIn: 3, RefundableFraction: 0.3333}, 1, Settlement{RefundAmount: 3333, PenaltyAmount: 6667}},
		{"past check-in", 10000, half, -2, Settlement{RefundAmount: 5000, PenaltyAmount: 5000}},
		{"free booking", 0, half, 0, Settlement{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.price, tc.policy, tc.days)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, max(tc.price, 0), got.RefundAmount+got.PenaltyAmount)
		})
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 10, DaysUntil(now, now.Add(10*24*time.Hour)))
	assert.Equal(t, 0, DaysUntil(now, now.Add(23*time.Hour)))
	assert.Equal(t, 1, DaysUntil(now, now.Add(47*time.Hour)))
	assert.Equal(t, -1, DaysUntil(now, now.Add(-time.Hour)))
}
