package payment

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/model"
)

// Initiation is what the consumer needs to complete a fresh card payment.
type Initiation struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitiateCharge opens a card transaction for email.  The consumer pays on
// the returned URL and books with the returned reference.
func (g *Gateway) InitiateCharge(ctx context.Context, email string, amount int64) (*Initiation, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperror.BadRequest("email is required")
	}
	if amount <= 0 {
		return nil, apperror.BadRequest("amount must be positive")
	}
	body := map[string]any{
		"email":    email,
		"amount":   strconv.FormatInt(amount, 10),
		"channels": []string{"card"},
	}
	var out Initiation
	if err := g.call(ctx, http.MethodPost, "transaction/initialize", body, &out); err != nil {
		if apperror.Is(err, apperror.KindBadRequest) {
			return nil, apperror.BadRequest("payment initiation failed")
		}
		return nil, err
	}
	return &out, nil
}

// ProxyExpectation is the exact amount a proxy-paid booking must have
// settled.
type ProxyExpectation struct {
	Amount int64
}

// Verification is a successfully verified transaction.
type Verification struct {
	Reference     string
	Amount        int64
	Authorization model.PaymentAuthorization
}

type cardAuthorization struct {
	AuthorizationCode string  `json:"authorization_code"`
	CardType          string  `json:"card_type"`
	Last4             string  `json:"last4"`
	Bank              string  `json:"bank"`
	ExpMonth          flexInt `json:"exp_month"`
	ExpYear           flexInt `json:"exp_year"`
	Reusable          bool    `json:"reusable"`
}

func (c cardAuthorization) snapshot(email string, amount int64) model.PaymentAuthorization {
	return model.PaymentAuthorization{
		AuthorizationCode: c.AuthorizationCode,
		CardType:          c.CardType,
		Last4:             c.Last4,
		Bank:              c.Bank,
		ExpMonth:          int(c.ExpMonth),
		ExpYear:           int(c.ExpYear),
		Reusable:          c.Reusable,
		Email:             email,
		Amount:            amount,
	}
}

type verifyData struct {
	Status        string            `json:"status"`
	Reference     string            `json:"reference"`
	Amount        int64             `json:"amount"`
	Authorization cardAuthorization `json:"authorization"`
	Customer      struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// VerifyReference confirms a fresh payment.  Anything but an explicit
// "success" status is an authorization failure, and under proxy payment the
// settled amount must equal expect.Amount exactly.
func (g *Gateway) VerifyReference(ctx context.Context, reference string, expect *ProxyExpectation) (*Verification, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperror.BadRequest("payment reference is required")
	}
	var data verifyData
	err := g.retry(ctx, "verify", func() error {
		return g.call(ctx, http.MethodGet, "transaction/verify/"+url.PathEscape(reference), nil, &data)
	})
	if err != nil {
		if apperror.Is(err, apperror.KindBadRequest) {
			return nil, apperror.Wrap(apperror.KindAuthorization, "payment verification failed", err)
		}
		return nil, err
	}
	if data.Status != "success" {
		return nil, apperror.Authorization("payment was not successful")
	}
	if expect != nil && data.Amount != expect.Amount {
		return nil, amountMismatch("amount paid does not match", reference, expect.Amount, data.Amount)
	}
	return &Verification{
		Reference:     reference,
		Amount:        data.Amount,
		Authorization: data.Authorization.snapshot(data.Customer.Email, data.Amount),
	}, nil
}

// Refund returns amount of the transaction to the original instrument; zero
// refunds the full amount.  Refunds are not retried here.
func (g *Gateway) Refund(ctx context.Context, reference string, amount int64) error {
	body := map[string]any{"transaction": reference}
	if amount > 0 {
		body["amount"] = amount
	}
	if err := g.call(ctx, http.MethodPost, "refund", body, nil); err != nil {
		g.logger.Errorf("refund %s (%d) failed: %v", reference, amount, err)
		return err
	}
	g.logger.Infof("refunded %d on %s", amount, reference)
	return nil
}
