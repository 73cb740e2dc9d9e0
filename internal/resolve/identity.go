// Package resolve enriches discovered listings with OpenSea-side data:
// collection identities keyed by contract address and best standing offers
// per token. Both resolvers own the rate limiting and retry policy around the
// raw API client.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/retry"
)

// rateKey is the limiter bucket shared by all OpenSea calls.
const rateKey = "opensea"

// CollectionAPI is the identity lookup surface of the OpenSea client.
type CollectionAPI interface {
	GetCollection(ctx context.Context, contract string) (domain.CollectionIdentity, error)
}

// IdentityResolver resolves contract addresses to OpenSea collection
// identities. Results are memoized for the life of the resolver, so repeated
// contracts within a run cost one API call; Resolved and NotFound outcomes
// are additionally written through to the shared cache so they survive runs,
// while Failed outcomes stay in-memory only and are retried next run.
type IdentityResolver struct {
	api     CollectionAPI
	limiter domain.RateLimiter
	retry   *retry.Policy
	cache   domain.IdentityCache // optional
	logger  *slog.Logger

	mu  sync.Mutex
	mem map[string]domain.CollectionIdentity
}

// NewIdentityResolver creates an identity resolver. cache may be nil.
func NewIdentityResolver(api CollectionAPI, limiter domain.RateLimiter, policy *retry.Policy,
	cache domain.IdentityCache, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{
		api:     api,
		limiter: limiter,
		retry:   policy,
		cache:   cache,
		logger:  logger.With(slog.String("component", "identity_resolver")),
		mem:     make(map[string]domain.CollectionIdentity),
	}
}

// Resolve returns the identity for a contract. Lookup failures are folded
// into the identity's status; the error return is reserved for context
// cancellation.
func (r *IdentityResolver) Resolve(ctx context.Context, contract string) (domain.CollectionIdentity, error) {
	r.mu.Lock()
	if identity, ok := r.mem[contract]; ok {
		r.mu.Unlock()
		return identity, nil
	}
	r.mu.Unlock()

	if r.cache != nil {
		if identity, err := r.cache.Get(ctx, contract); err == nil {
			r.remember(identity)
			return identity, nil
		}
	}

	if err := r.limiter.Acquire(ctx, rateKey); err != nil {
		return domain.CollectionIdentity{}, fmt.Errorf("resolve: identity %s: %w", contract, err)
	}

	var identity domain.CollectionIdentity
	err := r.retry.Do(ctx, "get collection", func(ctx context.Context) error {
		var err error
		identity, err = r.api.GetCollection(ctx, contract)
		return err
	})

	switch {
	case err == nil:
		// Resolved.
	case errors.Is(err, domain.ErrNotFound):
		identity = domain.CollectionIdentity{Contract: contract, Status: domain.IdentityNotFound}
	case ctx.Err() != nil:
		return domain.CollectionIdentity{}, fmt.Errorf("resolve: identity %s: %w", contract, ctx.Err())
	default:
		r.logger.Warn("identity lookup failed",
			slog.String("contract", contract),
			slog.Any("error", err))
		identity = domain.CollectionIdentity{Contract: contract, Status: domain.IdentityFailed}
	}

	r.remember(identity)
	if r.cache != nil && identity.Status != domain.IdentityFailed {
		if err := r.cache.Set(ctx, identity); err != nil {
			r.logger.Warn("identity cache write failed",
				slog.String("contract", contract),
				slog.Any("error", err))
		}
	}
	return identity, nil
}

func (r *IdentityResolver) remember(identity domain.CollectionIdentity) {
	r.mu.Lock()
	r.mem[identity.Contract] = identity
	r.mu.Unlock()
}
