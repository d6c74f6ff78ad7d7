package config

import "time"

// RateLimitConfig drives the Redis token bucket on /v1.  KeyStrategy is one
// of "actor_route" (default), "actor", "ip_route" or "ip".
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // bucket size (RATE_LIMIT_BURST overrides it)
	RefillTokens   int           // tokens added per RefillInterval
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after this
	KeyStrategy    string
	Prefix         string
	Debug          bool          // log every decision
}

// LoadRateLimitConfig reads the RATE_LIMIT_* variables.  The defaults allow
// a burst of 30 requests and one more every two seconds.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 30),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 2*time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "actor_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rsv:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if burst := envInt("RATE_LIMIT_BURST", 0); burst > 0 {
		cfg.Capacity = burst
	}
	cfg.Capacity = max(cfg.Capacity, 1)
	cfg.RefillTokens = max(cfg.RefillTokens, 1)
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// a bucket must outlive the time it takes to refill completely
	full := time.Duration(cfg.Capacity/cfg.RefillTokens+1) * cfg.RefillInterval
	cfg.TTL = max(cfg.TTL, full)
	return cfg
}
