// Package oracle maintains the ETH→USD reference rate behind a TTL cache and
// converts smallest-unit amounts into dollars. The oracle never fails: a fetch
// error falls back to the last known rate, or to a hard-coded constant when no
// rate has ever been fetched.
package oracle

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// DefaultFallbackUSD is used when no rate was ever fetched successfully.
const DefaultFallbackUSD = 3550

// RateFetcher retrieves the current ETH→USD rate from an external source.
type RateFetcher interface {
	FetchRate(ctx context.Context) (float64, error)
}

// Oracle is a process-wide cached exchange rate. Stale entries are refreshed
// lazily on the next conversion request, never proactively.
type Oracle struct {
	fetcher  RateFetcher
	ttl      time.Duration
	fallback float64
	cache    domain.RateCache // optional cross-restart persistence
	logger   *slog.Logger

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
}

// New creates an Oracle with the given fetcher and TTL. fallback is the rate
// of last resort; pass 0 to use DefaultFallbackUSD.
func New(fetcher RateFetcher, ttl time.Duration, fallback float64, logger *slog.Logger) *Oracle {
	if fallback <= 0 {
		fallback = DefaultFallbackUSD
	}
	return &Oracle{
		fetcher:  fetcher,
		ttl:      ttl,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "oracle")),
	}
}

// WithCache attaches a RateCache and primes the oracle from it. A cached rate
// older than the TTL still seeds the last-known value so a failed first fetch
// does not drop to the hard-coded fallback.
func (o *Oracle) WithCache(ctx context.Context, cache domain.RateCache) *Oracle {
	o.cache = cache
	if cached, err := cache.Get(ctx); err == nil && cached.Value > 0 {
		o.mu.Lock()
		o.rate = cached.Value
		o.fetchedAt = cached.FetchedAt
		o.mu.Unlock()
		o.logger.InfoContext(ctx, "primed exchange rate from cache",
			slog.Float64("rate", cached.Value),
			slog.Time("fetched_at", cached.FetchedAt),
		)
	}
	return o
}

// Rate returns the current ETH→USD rate, refreshing it when the cached value
// is older than the TTL.
func (o *Oracle) Rate(ctx context.Context) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.rate > 0 && time.Since(o.fetchedAt) < o.ttl {
		return o.rate
	}

	fresh, err := o.fetcher.FetchRate(ctx)
	if err != nil || fresh <= 0 {
		if o.rate > 0 {
			o.logger.WarnContext(ctx, "rate fetch failed, using last known rate",
				slog.Float64("rate", o.rate),
			)
			return o.rate
		}
		o.logger.WarnContext(ctx, "rate fetch failed with no prior rate, using fallback",
			slog.Float64("fallback", o.fallback),
		)
		return o.fallback
	}

	if fresh != o.rate {
		o.logger.InfoContext(ctx, "exchange rate updated", slog.Float64("rate", fresh))
	}
	o.rate = fresh
	o.fetchedAt = time.Now()

	if o.cache != nil {
		if err := o.cache.Set(ctx, o.rate, o.fetchedAt); err != nil {
			o.logger.WarnContext(ctx, "failed to persist exchange rate",
				slog.String("error", err.Error()),
			)
		}
	}

	return o.rate
}

// Convert turns a smallest-unit amount with the given decimal scale into USD.
func (o *Oracle) Convert(ctx context.Context, amountBase *big.Int, decimals int) float64 {
	if amountBase == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(amountBase), scale).Float64()
	return units * o.Rate(ctx)
}

// WeiToUSD converts a wei amount to both ETH and USD.
func (o *Oracle) WeiToUSD(ctx context.Context, wei *big.Int) (eth, usd float64) {
	if wei == nil {
		return 0, 0
	}
	eth, _ = new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		big.NewFloat(params.Ether),
	).Float64()
	return eth, eth * o.Rate(ctx)
}
