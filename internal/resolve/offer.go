package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/oracle"
	"github.com/alanyoungcy/niftyarb/internal/platform/opensea"
	"github.com/alanyoungcy/niftyarb/internal/retry"
)

// OfferAPI is the best-offer lookup surface of the OpenSea client.
type OfferAPI interface {
	GetBestOffer(ctx context.Context, slug, tokenID string) (*opensea.BestOffer, error)
}

// OfferResolver fetches the best standing offer for a token and normalizes it
// to a per-unit quote. Offers that cover multiple editions are divided down
// to a single edition's value, since the scanner only ever sells one.
type OfferResolver struct {
	api     OfferAPI
	limiter domain.RateLimiter
	retry   *retry.Policy
	oracle  *oracle.Oracle
	logger  *slog.Logger
}

// NewOfferResolver creates an offer resolver.
func NewOfferResolver(api OfferAPI, limiter domain.RateLimiter, policy *retry.Policy,
	orc *oracle.Oracle, logger *slog.Logger) *OfferResolver {
	return &OfferResolver{
		api:     api,
		limiter: limiter,
		retry:   policy,
		oracle:  orc,
		logger:  logger.With(slog.String("component", "offer_resolver")),
	}
}

// BestOffer returns the per-unit best offer for the token, or (nil, nil) when
// no offer exists or the collection identity never resolved. Per-unit wei is
// the floor of total/quantity; the remainder is discarded rather than rounded
// up, so a quote never overstates what one edition fetches.
func (r *OfferResolver) BestOffer(ctx context.Context, identity domain.CollectionIdentity,
	tokenID string) (*domain.OfferQuote, error) {
	if identity.Status != domain.IdentityResolved {
		return nil, nil
	}

	if err := r.limiter.Acquire(ctx, rateKey); err != nil {
		return nil, fmt.Errorf("resolve: offer %s/%s: %w", identity.Slug, tokenID, err)
	}

	var offer *opensea.BestOffer
	err := r.retry.Do(ctx, "get best offer", func(ctx context.Context) error {
		var err error
		offer, err = r.api.GetBestOffer(ctx, identity.Slug, tokenID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve: offer %s/%s: %w", identity.Slug, tokenID, err)
	}
	if offer == nil {
		return nil, nil
	}

	quantity := offer.Quantity
	if quantity < 1 {
		quantity = 1
	}
	perUnitWei := new(big.Int).Quo(offer.TotalWei, big.NewInt(int64(quantity)))

	perUnitETH, perUnitUSD := r.oracle.WeiToUSD(ctx, perUnitWei)

	return &domain.OfferQuote{
		TotalWei:   offer.TotalWei,
		PerUnitWei: perUnitWei,
		PerUnitETH: perUnitETH,
		PerUnitUSD: perUnitUSD,
		Quantity:   quantity,
		OrderHash:  offer.OrderHash,
		FetchedAt:  time.Now().UTC(),
	}, nil
}
