package model

import "time"

// Interval is the bucket width for reservation analytics.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// Valid reports whether i is a supported interval.
func (i Interval) Valid() bool {
	return i == IntervalDaily || i == IntervalWeekly || i == IntervalMonthly
}

// AnalyticsQuery selects the reservations of one actor created in [From, To].
type AnalyticsQuery struct {
	Actor        Actor
	From         time.Time
	To           time.Time
	Interval     Interval
	PropertyID   *uint64
	PropertyType *PropertyType
}

// AnalyticsBucket aggregates reservations created within one period.
type AnalyticsBucket struct {
	Period       string `json:"period"`
	Reservations int64  `json:"reservations"`
	Cancelled    int64  `json:"cancelled"`
	Completed    int64  `json:"completed"`
	Revenue      int64  `json:"revenue"`
}
