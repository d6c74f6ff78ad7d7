// Package queue defines the messages exchanged over RabbitMQ and the
// background consumers that process them.
package queue

import "time"

// SettlementKind says which gateway call a settlement task repeats.
type SettlementKind string

const (
	SettlementRefund SettlementKind = "refund"
	SettlementPayout SettlementKind = "payout"
)

// SettlementTask is a refund or payout that failed after a cancellation was
// committed.  IdempotencyKey is reused as the payout reference on every
// attempt.
type SettlementTask struct {
	Kind           SettlementKind `json:"kind"`
	ReservationID  uint64         `json:"reservation_id"`
	Reference      string         `json:"reference,omitempty"`
	Recipient      string         `json:"recipient,omitempty"`
	Amount         int64          `json:"amount"`
	Reason         string         `json:"reason,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Attempt        int            `json:"attempt"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
