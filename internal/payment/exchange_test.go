package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/reservation-engine/internal/logging"
)

func rateServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "Bearer rate_key", r.Header.Get("Authorization"))
		rates := map[string]float64{"USD": 1, "NGN": 1500, "EUR": 0.9}
		if r.URL.Path == "/latest/NGN" {
			rates = map[string]float64{"NGN": 1, "USD": 0.0005}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "success", "conversion_rates": rates})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRateProvider_RedisCacheAndInverse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	var hits int32
	srv := rateServer(t, &hits)

	p := NewRateProvider(RateConfig{BaseURL: srv.URL, APIKey: "rate_key"}, NewRedisRateCache(rdb), logging.Discard())
	ctx := context.Background()

	r, err := p.ExchangeRate(ctx, "usd", "NGN")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, r)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Equal(t, 24*time.Hour, mr.TTL("exchange_rate:USD"))

	// cached
	_, err = p.ExchangeRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	// inverse of the cached USD table
	r, err = p.ExchangeRate(ctx, "NGN", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/1500, r, 1e-12)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	// expiry forces a refetch
	mr.FastForward(25 * time.Hour)
	_, err = p.ExchangeRate(ctx, "USD", "NGN")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestRateProvider_MemoryCache(t *testing.T) {
	var hits int32
	srv := rateServer(t, &hits)
	cache := NewMemoryRateCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	p := NewRateProvider(RateConfig{BaseURL: srv.URL, APIKey: "rate_key"}, cache, logging.Discard())
	rates, err := p.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 0.9, rates["EUR"])

	_, err = p.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	now = now.Add(24 * time.Hour)
	_, err = p.Rates(context.Background(), "USD")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestRateProvider_UnknownQuote(t *testing.T) {
	var hits int32
	srv := rateServer(t, &hits)
	p := NewRateProvider(RateConfig{BaseURL: srv.URL, APIKey: "rate_key"}, NewMemoryRateCache(), logging.Discard())

	_, err := p.ExchangeRate(context.Background(), "USD", "XYZ")
	assert.Error(t, err)
	r, err := p.ExchangeRate(context.Background(), "USD", "usd")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r)
}
