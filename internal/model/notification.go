package model

import "time"

// Notification types.
const (
	NotificationNewReservation    = "new_reservation"
	NotificationReservationStatus = "reservation_status"
	NotificationSettlement        = "settlement"
)

// Notification is an append-only message to one actor.  Rows are never
// updated after creation.
type Notification struct {
	ID            uint64    `json:"id"`
	RecipientID   uint64    `json:"recipient_id"`
	RecipientRole Role      `json:"recipient_role"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}
