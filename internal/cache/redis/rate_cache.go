package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// rateKey is the single hash holding the last known ETH/USD rate, with
// fields "rate" and "ts" (Unix nanosecond timestamp).
var rateKey = Key("rate", "eth_usd")

// RateCache implements domain.RateCache. A restarted scanner primes its
// oracle from here instead of burning an immediate CoinGecko call.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

// Get retrieves the last stored rate. It returns domain.ErrNotFound when no
// rate has ever been stored.
func (rc *RateCache) Get(ctx context.Context) (domain.ExchangeRate, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey).Result()
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: get rate: %w", err)
	}
	if len(vals) == 0 {
		return domain.ExchangeRate{}, domain.ErrNotFound
	}

	rate, err := strconv.ParseFloat(vals["rate"], 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse rate: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.ExchangeRate{}, fmt.Errorf("redis: parse rate ts: %w", err)
	}

	return domain.ExchangeRate{Value: rate, FetchedAt: time.Unix(0, tsNano)}, nil
}

// Set stores the rate and its fetch time.
func (rc *RateCache) Set(ctx context.Context, rate float64, ts time.Time) error {
	fields := map[string]interface{}{
		"rate": strconv.FormatFloat(rate, 'f', -1, 64),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, rateKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
