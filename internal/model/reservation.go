package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// PropertyType identifies what kind of property a reservation targets.
type PropertyType string

const (
	PropertyStay       PropertyType = "STAY"
	PropertyRestaurant PropertyType = "RESTAURANT"
	PropertyNightLife  PropertyType = "NIGHTLIFE"
)

// Valid reports whether t is a known property type.
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyStay, PropertyRestaurant, PropertyNightLife:
		return true
	}
	return false
}

// CapacityConstrained reports whether reservations of this type consume
// unit-level inventory.  Only lodging is tracked per unit.
func (t PropertyType) CapacityConstrained() bool { return t == PropertyStay }

// Status is the lifecycle state of a reservation.
//
// REQUESTED only exists while the booking unit of work is in flight; rows
// are written as CONFIRMED.  CANCELLED and COMPLETED are terminal.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool { return s == StatusCancelled || s == StatusCompleted }

// GuestCount holds adult and child counts.
type GuestCount struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

// UnitSelection is one bookable unit requested in a capacity-constrained
// reservation.
type UnitSelection struct {
	UnitID   uint64     `json:"unit_id"`
	Quantity int        `json:"quantity"`
	Guests   GuestCount `json:"guests"`
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Schedule is the check-in/check-out window.  Days are calendar dates in UTC
// and times are HH:MM in 24-hour format.
type Schedule struct {
	CheckInDay   time.Time `json:"check_in_day"`
	CheckInTime  string    `json:"check_in_time"`
	CheckOutDay  time.Time `json:"check_out_day"`
	CheckOutTime string    `json:"check_out_time"`
}

// CheckIn combines CheckInDay and CheckInTime.
func (s Schedule) CheckIn() time.Time { return combine(s.CheckInDay, s.CheckInTime) }

// CheckOut combines CheckOutDay and CheckOutTime.
func (s Schedule) CheckOut() time.Time { return combine(s.CheckOutDay, s.CheckOutTime) }

// Validate checks that both times are HH:MM and the window is not inverted.
func (s Schedule) Validate() error {
	if s.CheckInDay.IsZero() || s.CheckOutDay.IsZero() {
		return errors.New("check-in and check-out days are required")
	}
	if !clockPattern.MatchString(s.CheckInTime) {
		return errors.New("check-in time should be in HH:MM 24-hour format")
	}
	if !clockPattern.MatchString(s.CheckOutTime) {
		return errors.New("check-out time should be in HH:MM 24-hour format")
	}
	if s.CheckOut().Before(s.CheckIn()) {
		return errors.New("check-out must not be before check-in")
	}
	return nil
}

func combine(day time.Time, clock string) time.Time {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return d
	}
	return d.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

// Reservation is the central booking entity.
//
// Fields:
//  ID            – primary key.
//  Reference     – immutable, globally unique code quoted to customers.
//  ConsumerID    – account that made (and pays for) the booking.
//  OperatorID    – account operating the property.
//  PropertyID    – booked property; PropertyType decides inventory tracking.
//  Units         – unit selections, only for capacity-constrained types.
//  Price         – total in the smallest currency unit.
//  PaymentRef    – gateway reference of the captured payment, if any.
//  PaymentAuth   – authorization snapshot used for the charge (never serialized).
//  ProxyPayment  – consumer pays on behalf of the operator (never serialized).
type Reservation struct {
	ID           uint64                `json:"id"`
	Reference    string                `json:"reference"`
	ConsumerID   uint64                `json:"consumer_id"`
	OperatorID   uint64                `json:"operator_id"`
	PropertyID   uint64                `json:"property_id"`
	PropertyType PropertyType          `json:"property_type"`
	Units        []UnitSelection       `json:"units,omitempty"`
	Schedule                           // check-in/out fields are inlined
	Guests       GuestCount            `json:"guests"`
	Price        int64                 `json:"price"`
	PaymentRef   *string               `json:"payment_ref,omitempty"`
	PaymentAuth  *PaymentAuthorization `json:"-"`
	Status       Status                `json:"status"`
	Requests     []string              `json:"requests,omitempty"`
	ProxyPayment bool                  `json:"-"`
	IsAgent      bool                  `json:"is_agent"`
	GuestName    string                `json:"guest_full_name,omitempty"`
	GuestEmail   string                `json:"guest_email,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// InvolvesActor reports whether the actor is the consumer or the operator of r.
func (r *Reservation) InvolvesActor(a Actor) bool {
	switch a.Role {
	case RoleConsumer:
		return r.ConsumerID == a.ID
	case RoleOperator:
		return r.OperatorID == a.ID
	}
	return false
}

// TotalUnits sums the quantities of all unit selections.
func (r *Reservation) TotalUnits() int {
	n := 0
	for _, u := range r.Units {
		n += u.Quantity
	}
	return n
}
