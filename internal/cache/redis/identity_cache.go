package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// identityTTL bounds how long a cached identity survives. Collection slugs
// are effectively immutable, but a bounded TTL lets a renamed or newly
// indexed collection heal without manual cache flushes.
const identityTTL = 7 * 24 * time.Hour

// IdentityCache implements domain.IdentityCache using Redis hashes. Each
// contract is stored at "niftyarb:identity:{contract}" with fields "name",
// "slug" and "status".
type IdentityCache struct {
	rdb *redis.Client
}

// NewIdentityCache creates an IdentityCache backed by the given Client.
func NewIdentityCache(c *Client) *IdentityCache {
	return &IdentityCache{rdb: c.Underlying()}
}

func identityKey(contract string) string {
	return Key("identity", contract)
}

// Get retrieves the cached identity for a contract. It returns
// domain.ErrNotFound when the contract has never been cached.
func (ic *IdentityCache) Get(ctx context.Context, contract string) (domain.CollectionIdentity, error) {
	vals, err := ic.rdb.HGetAll(ctx, identityKey(contract)).Result()
	if err != nil {
		return domain.CollectionIdentity{}, fmt.Errorf("redis: get identity %s: %w", contract, err)
	}
	if len(vals) == 0 {
		return domain.CollectionIdentity{}, domain.ErrNotFound
	}

	status := domain.IdentityStatus(vals["status"])
	if status != domain.IdentityResolved && status != domain.IdentityNotFound {
		return domain.CollectionIdentity{}, domain.ErrNotFound
	}

	return domain.CollectionIdentity{
		Contract: contract,
		Name:     vals["name"],
		Slug:     vals["slug"],
		Status:   status,
	}, nil
}

// Set stores an identity. Failed resolutions are rejected: the cache only
// holds outcomes stable enough to survive a run boundary.
func (ic *IdentityCache) Set(ctx context.Context, identity domain.CollectionIdentity) error {
	if identity.Status == domain.IdentityFailed {
		return fmt.Errorf("redis: set identity %s: failed resolutions are not cacheable", identity.Contract)
	}

	key := identityKey(identity.Contract)
	fields := map[string]interface{}{
		"name":   identity.Name,
		"slug":   identity.Slug,
		"status": string(identity.Status),
	}

	pipe := ic.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, identityTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set identity %s: %w", identity.Contract, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.IdentityCache = (*IdentityCache)(nil)
