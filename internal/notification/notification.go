// Package notification persists notifications and pushes them to actors
// that are online.  Every call is best-effort from the caller's point of
// view: the reservation it describes is already committed.
package notification

import (
	"context"
	"fmt"

	"github.com/iliyamo/reservation-engine/internal/logging"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/realtime"
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByRecipient(ctx context.Context, recipient model.Actor, limit int) ([]model.Notification, error)
}

// Service is the notification fan-out.
type Service struct {
	store    Store
	presence realtime.Presence
	emitter  realtime.Emitter
	logger   logging.Logger
}

func NewService(store Store, presence realtime.Presence, emitter realtime.Emitter, logger logging.Logger) *Service {
	return &Service{store: store, presence: presence, emitter: emitter, logger: logger}
}

// Notify stores n and, if the recipient holds an open channel, pushes it as
// new_notification.  A failed push is logged; the stored row is then the
// only trace.  Only a failed write is returned.
func (s *Service) Notify(ctx context.Context, n *model.Notification) error {
	if err := s.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if err := s.PushTo(ctx, n.RecipientID, realtime.EventNewNotification, n); err != nil {
		s.logger.Warnf("push notification %d to %d: %v", n.ID, n.RecipientID, err)
	}
	return nil
}

// PushTo emits event to the actor's open channel.  An offline actor is not
// an error.
func (s *Service) PushTo(ctx context.Context, actorID uint64, event string, payload any) error {
	ch, ok, err := s.presence.ResolveChannel(ctx, actorID)
	if err != nil {
		return fmt.Errorf("resolve channel: %w", err)
	}
	if !ok {
		return nil
	}
	return s.emitter.EmitTo(ctx, ch, event, payload)
}

// Broadcast emits event to every observer.
func (s *Service) Broadcast(ctx context.Context, event string, payload any) error {
	return s.emitter.Emit(ctx, event, payload)
}

// List returns the actor's latest notifications.
func (s *Service) List(ctx context.Context, actor model.Actor, limit int) ([]model.Notification, error) {
	return s.store.ListByRecipient(ctx, actor, limit)
}
