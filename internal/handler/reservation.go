package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/service"
)

// Reservations is the state machine as seen by the transport layer.
// *service.ReservationService implements it.
type Reservations interface {
	CreateReservation(ctx context.Context, req service.CreateRequest) (*model.Reservation, error)
	UpdateStatus(ctx context.Context, reservationID uint64, actor model.Actor, to model.Status) (*service.StatusChange, error)
	GetByID(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error)
	GetByReference(ctx context.Context, actor model.Actor, reference string) (*model.Reservation, error)
	ListForConsumer(ctx context.Context, actor model.Actor) ([]*model.Reservation, error)
	ListForOperator(ctx context.Context, actor model.Actor) ([]*model.Reservation, error)
	Analytics(ctx context.Context, aq model.AnalyticsQuery) ([]model.AnalyticsBucket, error)
}

// ReservationHandler serves /v1/reservations.  JWT authentication has
// already run; role checks beyond "is a known actor" live in the service.
type ReservationHandler struct {
	svc Reservations
}

func NewReservationHandler(svc Reservations) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{svc: svc}
}

const dayLayout = "2006-01-02"

// createBody is the POST /v1/reservations payload.  Days are YYYY-MM-DD,
// times HH:MM.  Price is in the smallest currency unit.
type createBody struct {
	PropertyID       uint64                `json:"property_id"`
	PropertyType     string                `json:"property_type"`
	CheckInDay       string                `json:"check_in_day"`
	CheckInTime      string                `json:"check_in_time"`
	CheckOutDay      string                `json:"check_out_day"`
	CheckOutTime     string                `json:"check_out_time"`
	Units            []model.UnitSelection `json:"units"`
	Guests           model.GuestCount      `json:"guests"`
	Price            int64                 `json:"price"`
	Requests         []string              `json:"requests"`
	PaymentMode      string                `json:"payment_mode"`
	PaymentReference string                `json:"payment_reference"`
	ProxyPayment     bool                  `json:"proxy_payment"`
	IsAgent          bool                  `json:"is_agent"`
	GuestName        string                `json:"guest_full_name"`
	GuestEmail       string                `json:"guest_email"`
}

func (b createBody) request(consumerID uint64) (service.CreateRequest, error) {
	in, err := time.Parse(dayLayout, strings.TrimSpace(b.CheckInDay))
	if err != nil {
		return service.CreateRequest{}, apperror.BadRequest("check_in_day must be YYYY-MM-DD")
	}
	out, err := time.Parse(dayLayout, strings.TrimSpace(b.CheckOutDay))
	if err != nil {
		return service.CreateRequest{}, apperror.BadRequest("check_out_day must be YYYY-MM-DD")
	}
	mode := service.PaymentMode(strings.ToLower(strings.TrimSpace(b.PaymentMode)))
	if mode == "" {
		// a reference implies reference mode, otherwise nothing is charged
		mode = service.PaymentNone
		if strings.TrimSpace(b.PaymentReference) != "" {
			mode = service.PaymentReference
		}
	}
	return service.CreateRequest{
		ConsumerID:   consumerID,
		PropertyID:   b.PropertyID,
		PropertyType: model.PropertyType(strings.ToUpper(strings.TrimSpace(b.PropertyType))),
		Schedule: model.Schedule{
			CheckInDay: in, CheckInTime: strings.TrimSpace(b.CheckInTime),
			CheckOutDay: out, CheckOutTime: strings.TrimSpace(b.CheckOutTime),
		},
		Units:            b.Units,
		Guests:           b.Guests,
		Price:            b.Price,
		Requests:         b.Requests,
		PaymentMode:      mode,
		PaymentReference: b.PaymentReference,
		ProxyPayment:     b.ProxyPayment,
		IsAgent:          b.IsAgent,
		GuestName:        b.GuestName,
		GuestEmail:       b.GuestEmail,
	}, nil
}

// Create handles POST /v1/reservations (consumers only) and returns 201
// with the confirmed reservation.
func (h *ReservationHandler) Create(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	var body createBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, apperror.BadRequest("invalid request body"))
	}
	req, err := body.request(actor.ID)
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.svc.CreateReservation(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// UpdateStatus handles PATCH /v1/reservations/:id/status with
// {"status": "CANCELLED"|"COMPLETED"}.
func (h *ReservationHandler) UpdateStatus(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, apperror.BadRequest("invalid request body"))
	}
	to := model.Status(strings.ToUpper(strings.TrimSpace(body.Status)))
	change, err := h.svc.UpdateStatus(c.Request().Context(), id, actor, to)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, change)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.svc.GetByID(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetByReference handles GET /v1/reservations/ref/:reference.
func (h *ReservationHandler) GetByReference(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.svc.GetByReference(c.Request().Context(), actor, c.Param("reference"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// List handles GET /v1/reservations: a consumer's bookings or the
// reservations on an operator's properties, newest first.
func (h *ReservationHandler) List(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Request().Context()
	var list []*model.Reservation
	if actor.Role == model.RoleOperator {
		list, err = h.svc.ListForOperator(ctx, actor)
	} else {
		list, err = h.svc.ListForConsumer(ctx, actor)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list, "count": len(list)})
}

// Analytics handles POST /v1/reservations/analytics.
func (h *ReservationHandler) Analytics(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	var body struct {
		From         string  `json:"from"`
		To           string  `json:"to"`
		Interval     string  `json:"interval"`
		PropertyID   *uint64 `json:"property"`
		PropertyType *string `json:"property_type"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, apperror.BadRequest("invalid request body"))
	}
	from, err1 := time.Parse(dayLayout, body.From)
	to, err2 := time.Parse(dayLayout, body.To)
	if err1 != nil || err2 != nil {
		return writeError(c, apperror.BadRequest("from and to must be YYYY-MM-DD"))
	}
	aq := model.AnalyticsQuery{
		Actor:      actor,
		From:       from,
		To:         to.Add(24*time.Hour - time.Second), // inclusive of the last day
		Interval:   model.Interval(strings.ToLower(body.Interval)),
		PropertyID: body.PropertyID,
	}
	if body.PropertyType != nil {
		pt := model.PropertyType(strings.ToUpper(*body.PropertyType))
		aq.PropertyType = &pt
	}
	buckets, err := h.svc.Analytics(c.Request().Context(), aq)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"interval": aq.Interval, "buckets": buckets})
}
