// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow the service layer to tell the
// different failure scenarios apart and classify them for callers.
package repository

import "errors"

// ErrConflict is returned when a conditional write matched no row because the
// row is no longer in the expected state (for example an already terminal
// reservation).
var ErrConflict = errors.New("conflict")

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrPropertyNotFound    = errors.New("property not found")
	ErrUnitNotFound        = errors.New("unit not found")
)
