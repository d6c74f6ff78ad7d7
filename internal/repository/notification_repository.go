package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/reservation-engine/internal/model"
)

// NotificationRepo stores the append-only notification log.
type NotificationRepo struct{ db *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts n and fills in its ID and CreatedAt.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (recipient_id, recipient_role, type, title, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.RecipientID, n.RecipientRole, n.Type, n.Title, n.Message, now)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	n.CreatedAt = now
	return nil
}

// ListByRecipient returns up to limit notifications for an actor, newest first.
func (r *NotificationRepo) ListByRecipient(ctx context.Context, recipient model.Actor, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient_id, recipient_role, type, title, message, created_at
		 FROM notifications WHERE recipient_id=? AND recipient_role=?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		recipient.ID, recipient.Role, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.RecipientRole, &n.Type, &n.Title, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
