package router

// This file registers the payment, account and notification routes.  They
// are thin wrappers around the gateway and the settings service, kept apart
// from the reservation routes.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/handler"
	"github.com/iliyamo/reservation-engine/internal/middleware"
	"github.com/iliyamo/reservation-engine/internal/model"
)

// RegisterPayments mounts /v1/payment.  cache may be nil.
func RegisterPayments(v1 *echo.Group, h *handler.PaymentHandler, cache echo.MiddlewareFunc) {
	g := v1.Group("/payment")
	consumer := middleware.RequireRole(model.RoleConsumer)
	g.POST("/initiate", h.Initiate, consumer)
	g.POST("/charge/:step", h.ChargeStep, consumer)
	if cache != nil {
		g.GET("/banks", h.Banks, cache)
	} else {
		g.GET("/banks", h.Banks)
	}
	g.GET("/exchange-rate", h.ExchangeRate)
}

// RegisterAccount mounts the operator settings under /v1/account.
func RegisterAccount(v1 *echo.Group, h *handler.AccountHandler) {
	g := v1.Group("/account", middleware.RequireRole(model.RoleOperator))
	g.PATCH("/bank", h.RegisterBank)
	g.PATCH("/cancellation-policy", h.SetCancellationPolicy)
}

// RegisterNotifications mounts the notification feed and the presence
// heartbeat.
func RegisterNotifications(v1 *echo.Group, h *handler.NotificationHandler) {
	v1.GET("/notifications", h.List)
	v1.PUT("/realtime/presence", h.Online)
	v1.DELETE("/realtime/presence", h.Offline)
}
