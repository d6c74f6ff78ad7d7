package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/model"
	"github.com/iliyamo/reservation-engine/internal/payment"
)

// Accounts is the account/payment service used by PaymentHandler and
// AccountHandler.  *service.AccountService implements it.
type Accounts interface {
	InitiatePayment(ctx context.Context, actor model.Actor, amount int64) (*payment.Initiation, error)
	SubmitChargeStep(ctx context.Context, actor model.Actor, step payment.ChargeStep, reference, value string) (payment.ChargeOutcome, error)
	RegisterPayoutAccount(ctx context.Context, actor model.Actor, b payment.BankDetails) (string, error)
	SetCancellationPolicy(ctx context.Context, actor model.Actor, p model.CancellationPolicy) error
}

// BankDirectory lists banks for payout registration.
type BankDirectory interface {
	ListBanks(ctx context.Context, country string) ([]payment.Bank, error)
}

// RateSource converts between currencies.
type RateSource interface {
	ExchangeRate(ctx context.Context, base, quote string) (float64, error)
}

// PaymentHandler serves /v1/payment.
type PaymentHandler struct {
	accounts Accounts
	banks    BankDirectory
	rates    RateSource
}

func NewPaymentHandler(accounts Accounts, banks BankDirectory, rates RateSource) *PaymentHandler {
	if accounts == nil || banks == nil || rates == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{accounts: accounts, banks: banks, rates: rates}
}

// Initiate handles POST /v1/payment/initiate {amount}.  The consumer pays on
// the returned authorization URL and books with the returned reference.
func (h *PaymentHandler) Initiate(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, apperror.BadRequest("invalid request body"))
	}
	in, err := h.accounts.InitiatePayment(c.Request().Context(), actor, body.Amount)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, in)
}

// ChargeStep handles POST /v1/payment/charge/:step {reference, value} for
// step otp, pin, phone or birthday.
func (h *PaymentHandler) ChargeStep(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return writeError(c, err)
	}
	var body struct {
		Reference string `json:"reference"`
		Value     string `json:"value"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, apperror.BadRequest("invalid request body"))
	}
	step := payment.ChargeStep(strings.ToLower(c.Param("step")))
	out, err := h.accounts.SubmitChargeStep(c.Request().Context(), actor, step, body.Reference, body.Value)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, payment.View(out))
}

// Banks handles GET /v1/payment/banks?country=nigeria.
func (h *PaymentHandler) Banks(c echo.Context) error {
	country := c.QueryParam("country")
	if country == "" {
		country = "nigeria"
	}
	banks, err := h.banks.ListBanks(c.Request().Context(), country)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"banks": banks})
}

// ExchangeRate handles GET /v1/payment/exchange-rate?base=USD&quote=NGN.
func (h *PaymentHandler) ExchangeRate(c echo.Context) error {
	base := strings.ToUpper(strings.TrimSpace(c.QueryParam("base")))
	quote := strings.ToUpper(strings.TrimSpace(c.QueryParam("quote")))
	if base == "" || quote == "" {
		return writeError(c, apperror.BadRequest("base and quote are required"))
	}
	rate, err := h.rates.ExchangeRate(c.Request().Context(), base, quote)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"base": base, "quote": quote, "rate": rate})
}
