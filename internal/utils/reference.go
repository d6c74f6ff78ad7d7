package utils

import (
	"crypto/rand"
	"encoding/base32"
)

// referenceEncoding drops 0/O and 1/I so codes read back unambiguously.
var referenceEncoding = base32.NewEncoding("ABCDEFGHJKLMNPQRSTUVWXYZ23456789").WithPadding(base32.NoPadding)

// NewReservationReference returns a code like "RSV-7KQ2MX9P4T".  Ten
// characters carry 50 random bits; collisions are caught by the unique
// index and the caller retries.
func NewReservationReference() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "RSV-" + referenceEncoding.EncodeToString(buf)[:10], nil
}
