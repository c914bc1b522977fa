package cache

import "time"

// CacheConfig holds TTLs and key layout for the read-through cache
type CacheConfig struct {
	QuoteTTL  time.Duration `json:"quoteTTL"`
	PointsTTL time.Duration `json:"pointsTTL"`
	KeyPrefix string        `json:"keyPrefix"`
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		QuoteTTL:  10 * time.Minute, // quotes never change once added
		PointsTTL: 15 * time.Second,
		KeyPrefix: "companion:cache:",
	}
}

// TTLFor returns the TTL for a kind of cached value; unknown kinds get the short points TTL
func (c CacheConfig) TTLFor(kind string) time.Duration {
	switch kind {
	case "quote":
		return c.QuoteTTL
	default:
		return c.PointsTTL
	}
}
