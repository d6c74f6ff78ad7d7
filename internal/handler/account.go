package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
)

// AccountHandler serves the operator's payout and cancellation settings.
type AccountHandler struct {
	accounts Accounts
}

func NewAccountHandler(accounts Accounts) *AccountHandler {
	if accounts == nil {
		panic("nil service passed to NewAccountHandler")
	}
	return &AccountHandler{accounts: accounts}
}

// RegisterBank handles PATCH /v1/account/bank.
func (h *AccountHandler) RegisterBank(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	var body payment.BankDetails
	if err := c.Bind(&body); err != nil {
		return writeError(c, apperror.BadRequest("invalid request body"))
	}
	code, err := h.accounts.RegisterPayoutAccount(c.Request().Context(), actor, body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"recipient_code": code})
}

// SetCancellationPolicy handles PATCH /v1/account/cancellation-policy
// {days_before_checkin, refundable_fraction}.
func (h *AccountHandler) SetCancellationPolicy(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	var body model.CancellationPolicy
	if err := c.Bind(&body); err != nil {
		return writeError(c, apperror.BadRequest("invalid request body"))
	}
	if err := h.accounts.SetCancellationPolicy(c.Request().Context(), actor, body); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, body)
}
