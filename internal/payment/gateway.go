// Package payment talks to the card processor and the exchange-rate
// provider.  Amounts are always in the smallest currency unit.
//
// Transport failures, 5xx and 429 responses are upstream failures and are
// retried with exponential backoff where the call is safe to repeat.  Any
// other 4xx is a business rejection and is never retried.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/logging"
)

// Config holds gateway settings.
type Config struct {
	BaseURL        string
	SecretKey      string
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
}

// Gateway is the card-processor client.
type Gateway struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
	newKey func() string
}

// NewGateway builds a Gateway.  Zero durations and retry counts fall back to
// 10s per call, 3 retries and 200ms initial backoff.
func NewGateway(cfg Config, logger logging.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
		newKey: uuid.NewString,
	}
}

// envelope is the processor's common response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call performs a single request and decodes envelope.data into out.
func (g *Gateway) call(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(bs)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+"/"+strings.TrimLeft(path, "/"), rdr)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return apperror.Upstream("payment gateway unreachable", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperror.Upstream("payment gateway response unreadable", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return apperror.Upstream("payment gateway unavailable", fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	case resp.StatusCode >= 400:
		msg := env.Message
		if msg == "" {
			msg = "payment gateway rejected the request"
		}
		return apperror.BadRequest(msg)
	case decodeErr != nil:
		return apperror.Upstream("malformed payment gateway response", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperror.Upstream("malformed payment gateway response", err)
		}
	}
	return nil
}

// retry runs fn until it succeeds, returns a non-upstream error, or the
// retry budget is spent.  The same closure is re-run, so any idempotency
// key must be bound outside it.
func (g *Gateway) retry(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.InitialBackoff
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = 0
	eb.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(eb, g.cfg.MaxRetries), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !apperror.Is(err, apperror.KindUpstream) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		g.logger.Warnf("%s attempt %d failed, retrying in %s: %v", op, attempt, wait, err)
	})
}

// ErrAmountMismatch is wrapped by errors reporting that the gateway settled a
// different amount than expected.
var ErrAmountMismatch = errors.New("amount mismatch")

// AmountMismatchError names the transaction that settled the wrong amount.
// The money has moved, so callers own refunding Reference.
type AmountMismatchError struct {
	Reference string
	Expected  int64
	Got       int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch on %s: expected %d, got %d", e.Reference, e.Expected, e.Got)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

func amountMismatch(msg, reference string, expected, got int64) error {
	return apperror.Wrap(apperror.KindBadRequest, msg, &AmountMismatchError{Reference: reference, Expected: expected, Got: got})
}

// flexInt accepts both JSON numbers and numeric strings; the processor sends
// card expiry as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
