package domain

import (
	"context"
	"time"
)

// RateLimiter enforces a minimum spacing between calls to an external
// dependency. Keys are independent: acquiring one key never delays another.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) error
}

// IdentityCache persists resolved collection identities across runs so that
// continuous scanning does not re-resolve known contracts every sweep.
// Failed resolutions are never stored here; only Resolved and NotFound are
// stable enough to survive a run boundary.
type IdentityCache interface {
	Get(ctx context.Context, contract string) (CollectionIdentity, error)
	Set(ctx context.Context, identity CollectionIdentity) error
}

// RateCache persists the last known exchange rate so a restarted scanner can
// prime its oracle without an immediate fetch.
type RateCache interface {
	Get(ctx context.Context) (ExchangeRate, error)
	Set(ctx context.Context, rate float64, ts time.Time) error
}

// BlobWriter uploads a finished artifact to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
