package model

import "time"

// Role distinguishes the two kinds of actors that touch a reservation.
type Role string

const (
	RoleConsumer Role = "CONSUMER"
	RoleOperator Role = "OPERATOR"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleConsumer || r == RoleOperator }

// Actor is the authenticated caller attached to every request.
type Actor struct {
	ID   uint64
	Role Role
}

// Account represents a row in the `accounts` table.  Consumers and property
// operators share the table and are told apart by Role.
//
// Fields:
//  ID                 – primary key.
//  Email              – unique email, used as the charge email by default.
//  Role               – CONSUMER or OPERATOR.
//  PaymentAuth        – saved card authorization (nullable JSON column).
//  RecipientCode      – payout recipient registered with the gateway (nullable).
//  CancellationPolicy – operator-wide default policy (nullable).
type Account struct {
	ID                 uint64
	Email              string
	Role               Role
	PaymentAuth        *PaymentAuthorization
	RecipientCode      *string
	CancellationPolicy *CancellationPolicy
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Property is the subset of a catalog entry the booking core needs.  A
// property-level CancellationPolicy overrides the operator's default.
type Property struct {
	ID                 uint64              `json:"id"`
	OperatorID         uint64              `json:"operator_id"`
	Type               PropertyType        `json:"type"`
	Name               string              `json:"name"`
	CancellationPolicy *CancellationPolicy `json:"cancellation_policy,omitempty"`
}

// Unit is one bookable unit of a property with its remaining capacity.
type Unit struct {
	ID         uint64 `json:"id"`
	PropertyID uint64 `json:"property_id"`
	Name       string `json:"name"`
	Available  int    `json:"available"`
}
