package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/iliyamo/reservation-engine/internal/apperror"
)

// Payout moves Amount from the platform balance to a registered recipient.
// Reference is the idempotency key; empty means generate one.
type Payout struct {
	Recipient string
	Amount    int64
	Reason    string
	Reference string
}

// Transfer is the processor's record of a payout.
type Transfer struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

// PayRecipient sends a payout, retrying transient failures under one
// reference.
func (g *Gateway) PayRecipient(ctx context.Context, p Payout) (*Transfer, error) {
	if p.Recipient == "" {
		return nil, apperror.BadRequest("payout recipient is required")
	}
	if p.Amount <= 0 {
		return nil, apperror.BadRequest("payout amount must be positive")
	}
	if p.Reference == "" {
		p.Reference = g.newKey()
	}
	body := map[string]any{
		"source":    "balance",
		"amount":    p.Amount,
		"recipient": p.Recipient,
		"reason":    p.Reason,
		"reference": p.Reference,
	}
	var out Transfer
	err := g.retry(ctx, "payout "+p.Reference, func() error {
		return g.call(ctx, http.MethodPost, "transfer", body, &out)
	})
	if err != nil {
		return nil, err
	}
	if out.Reference == "" {
		out.Reference = p.Reference
	}
	return &out, nil
}

// BankDetails identifies an operator's payout account.
type BankDetails struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

// Validate checks the required fields.
func (b BankDetails) Validate() error {
	if b.Name == "" || b.AccountNumber == "" || b.BankCode == "" || b.Currency == "" {
		return apperror.BadRequest("name, account number, bank code and currency are required")
	}
	return nil
}

// RegisterRecipient registers bank details and returns the recipient code
// used for payouts.
func (g *Gateway) RegisterRecipient(ctx context.Context, b BankDetails) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	if b.Type == "" {
		b.Type = "nuban"
	}
	var out struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := g.call(ctx, http.MethodPost, "transferrecipient", b, &out); err != nil {
		if apperror.Is(err, apperror.KindBadRequest) {
			return "", apperror.BadRequest("recipient creation failed")
		}
		return "", err
	}
	if out.RecipientCode == "" {
		return "", apperror.Upstream("payment gateway returned no recipient code", nil)
	}
	return out.RecipientCode, nil
}

// Bank is one entry of the processor's bank directory.
type Bank struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
}

// ListBanks returns the banks supported in country.
func (g *Gateway) ListBanks(ctx context.Context, country string) ([]Bank, error) {
	country = strings.ToLower(strings.TrimSpace(country))
	if country == "" {
		return nil, apperror.BadRequest("country is required")
	}
	q := url.Values{}
	q.Set("country", country)
	q.Set("perPage", "100")
	out := make([]Bank, 0)
	err := g.retry(ctx, "banks", func() error {
		return g.call(ctx, http.MethodGet, "bank?"+q.Encode(), nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
