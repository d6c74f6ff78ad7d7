package config

import "time"

// PaymentConfig configures the card processor and the exchange-rate API.
// Amounts are always in the smallest currency unit.
type PaymentConfig struct {
	BaseURL        string
	SecretKey      string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration

	RatesBaseURL string
	RatesAPIKey  string
	RatesTTL     time.Duration
}

// LoadPaymentConfig reads the PAYSTACK_* and EXCHANGE_RATE_* variables.  The
// secret key is required; everything else has a default.
func LoadPaymentConfig() PaymentConfig {
	cfg := PaymentConfig{
		BaseURL:        envStr("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		SecretKey:      must("PAYSTACK_SECRET_KEY"),
		Timeout:        envDur("PAYMENT_TIMEOUT", 10*time.Second),
		MaxRetries:     envInt("PAYMENT_MAX_RETRIES", 3),
		InitialBackoff: envDur("PAYMENT_INITIAL_BACKOFF", 200*time.Millisecond),
		RatesBaseURL:   envStr("EXCHANGE_RATE_BASE_URL", "https://v6.exchangerate-api.com/v6"),
		RatesAPIKey:    envStr("EXCHANGE_RATE_API_KEY", ""),
		RatesTTL:       envDur("EXCHANGE_RATE_TTL", 24*time.Hour),
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return cfg
}
