package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/reservation-engine/internal/apperror"
	"github.com/iliyamo/reservation-engine/internal/logging"
)

// RateCache stores conversion tables keyed by base currency.
type RateCache interface {
	Get(ctx context.Context, base string) (map[string]float64, bool, error)
	Set(ctx context.Context, base string, rates map[string]float64, ttl time.Duration) error
}

// RedisRateCache keeps tables as JSON under "<prefix><BASE>" with a TTL.
type RedisRateCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRateCache(rdb *redis.Client) *RedisRateCache {
	return &RedisRateCache{rdb: rdb, prefix: "exchange_rate:"}
}

func (c *RedisRateCache) Get(ctx context.Context, base string) (map[string]float64, bool, error) {
	bs, err := c.rdb.Get(ctx, c.prefix+base).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rates map[string]float64
	if err := json.Unmarshal(bs, &rates); err != nil {
		return nil, false, err
	}
	return rates, true, nil
}

func (c *RedisRateCache) Set(ctx context.Context, base string, rates map[string]float64, ttl time.Duration) error {
	bs, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	return c.rdb.SetEx(ctx, c.prefix+base, bs, ttl).Err()
}

// MemoryRateCache is the in-process fallback used when Redis is not
// configured.
type MemoryRateCache struct {
	mu      sync.Mutex
	entries map[string]memoryRates
	now     func() time.Time
}

type memoryRates struct {
	rates   map[string]float64
	expires time.Time
}

func NewMemoryRateCache() *MemoryRateCache {
	return &MemoryRateCache{entries: map[string]memoryRates{}, now: time.Now}
}

func (c *MemoryRateCache) Get(_ context.Context, base string) (map[string]float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[base]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, base)
		return nil, false, nil
	}
	return e.rates, true, nil
}

func (c *MemoryRateCache) Set(_ context.Context, base string, rates map[string]float64, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[base] = memoryRates{rates: rates, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// RateConfig configures the exchange-rate provider.
type RateConfig struct {
	BaseURL string
	APIKey  string
	TTL     time.Duration
	Timeout time.Duration
}

// RateProvider serves conversion rates from cache, falling back to the
// upstream provider.  Rates are cached per base currency.
type RateProvider struct {
	cfg    RateConfig
	client *http.Client
	cache  RateCache
	logger logging.Logger
}

// NewRateProvider builds a provider.  TTL defaults to 24h.
func NewRateProvider(cfg RateConfig, cache RateCache, logger logging.Logger) *RateProvider {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RateProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, cache: cache, logger: logger}
}

// Rates returns the full conversion table for base.
func (p *RateProvider) Rates(ctx context.Context, base string) (map[string]float64, error) {
	base = normalizeCurrency(base)
	if base == "" {
		return nil, apperror.BadRequest("base currency is required")
	}
	if rates, ok := p.cached(ctx, base); ok {
		return rates, nil
	}
	return p.fetch(ctx, base)
}

// ExchangeRate returns how many units of quote one unit of base buys.  A
// cached table for quote is inverted before going upstream.
func (p *RateProvider) ExchangeRate(ctx context.Context, base, quote string) (float64, error) {
	base, quote = normalizeCurrency(base), normalizeCurrency(quote)
	if base == "" || quote == "" {
		return 0, apperror.BadRequest("base and quote currencies are required")
	}
	if base == quote {
		return 1, nil
	}
	if rates, ok := p.cached(ctx, base); ok {
		if r, ok := rates[quote]; ok {
			return r, nil
		}
	}
	if rates, ok := p.cached(ctx, quote); ok {
		if r := rates[base]; r > 0 {
			return 1 / r, nil
		}
	}
	rates, err := p.fetch(ctx, base)
	if err != nil {
		return 0, err
	}
	r, ok := rates[quote]
	if !ok {
		return 0, apperror.BadRequest(fmt.Sprintf("unsupported currency %s", quote))
	}
	return r, nil
}

func (p *RateProvider) cached(ctx context.Context, base string) (map[string]float64, bool) {
	rates, ok, err := p.cache.Get(ctx, base)
	if err != nil {
		p.logger.Warnf("rate cache read %s: %v", base, err)
		return nil, false
	}
	return rates, ok
}

func (p *RateProvider) fetch(ctx context.Context, base string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/latest/"+base, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperror.Upstream("exchange rate provider unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Upstream("exchange rate fetch failed", fmt.Errorf("status %d", resp.StatusCode))
	}
	var body struct {
		Result          string             `json:"result"`
		ConversionRates map[string]float64 `json:"conversion_rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperror.Upstream("malformed exchange rate response", err)
	}
	if len(body.ConversionRates) == 0 {
		return nil, apperror.Upstream("exchange rate fetch failed", errors.New("empty conversion table"))
	}
	if err := p.cache.Set(ctx, base, body.ConversionRates, p.cfg.TTL); err != nil {
		p.logger.Warnf("rate cache write %s: %v", base, err)
	}
	return body.ConversionRates, nil
}

func normalizeCurrency(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
