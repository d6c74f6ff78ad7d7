package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/model"
)

// NotificationLister reads an actor's notifications.
type NotificationLister interface {
	List(ctx context.Context, actor model.Actor, limit int) ([]model.Notification, error)
}

// PresenceRegistry records which real-time channel an actor has open.
type PresenceRegistry interface {
	MarkOnline(ctx context.Context, actorID uint64, channel string) error
	MarkOffline(ctx context.Context, actorID uint64, channel string) error
}

// NotificationHandler serves /v1/notifications and /v1/realtime/presence.
// presence may be nil when Redis is unavailable.
type NotificationHandler struct {
	notes    NotificationLister
	presence PresenceRegistry
}

func NewNotificationHandler(notes NotificationLister, presence PresenceRegistry) *NotificationHandler {
	if notes == nil {
		panic("nil lister passed to NewNotificationHandler")
	}
	return &NotificationHandler{notes: notes, presence: presence}
}

// List handles GET /v1/notifications?limit=50.
func (h *NotificationHandler) List(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return writeError(c, apperror.BadRequest("limit must be a non-negative integer"))
		}
	}
	list, err := h.notes.List(c.Request().Context(), actor, limit)
	if err != nil {
		return writeError(c, apperror.Wrap(apperror.KindInternal, "could not load notifications", err))
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": list})
}

type presenceBody struct {
	ChannelID string `json:"channel_id"`
}

func (h *NotificationHandler) presenceRequest(c echo.Context) (model.Actor, string, error) {
	actor, err := getActor(c)
	if err != nil {
		return actor, "", err
	}
	if h.presence == nil {
		return actor, "", apperror.Upstream("real-time presence is unavailable", nil)
	}
	var body presenceBody
	if err := c.Bind(&body); err != nil {
		return actor, "", apperror.BadRequest("invalid request body")
	}
	channel := strings.TrimSpace(body.ChannelID)
	if channel == "" {
		return actor, "", apperror.BadRequest("channel_id is required")
	}
	return actor, channel, nil
}

// Online handles PUT /v1/realtime/presence {channel_id}.  Clients repeat it
// as a heartbeat; the registration expires otherwise.
func (h *NotificationHandler) Online(c echo.Context) error {
	actor, channel, err := h.presenceRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.presence.MarkOnline(c.Request().Context(), actor.ID, channel); err != nil {
		return writeError(c, apperror.Upstream("could not register presence", err))
	}
	return c.NoContent(http.StatusNoContent)
}

// Offline handles DELETE /v1/realtime/presence {channel_id}.  Only the
// matching channel is cleared, so a stale tab cannot log out a newer one.
func (h *NotificationHandler) Offline(c echo.Context) error {
	actor, channel, err := h.presenceRequest(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.presence.MarkOffline(c.Request().Context(), actor.ID, channel); err != nil {
		return writeError(c, apperror.Upstream("could not clear presence", err))
	}
	return c.NoContent(http.StatusNoContent)
}
