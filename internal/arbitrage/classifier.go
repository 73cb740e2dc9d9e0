// Package arbitrage classifies a listing/offer pair into an opportunity tier.
package arbitrage

import "github.com/alanyoungcy/niftyarb/internal/domain"

// Tier boundaries, in percent of the listing price. Both are inclusive: an
// offer at exactly 90% of the asking price is still STRONG, at exactly 80%
// still MODERATE.
const (
	strongThresholdPct   = -10.0
	moderateThresholdPct = -20.0
)

// Classify compares the per-unit offer against the asking price and returns
// the verdict. A nil offer, or a snapshot without a usable asking price,
// yields NO_OFFER with zero profit figures.
//
// ProfitPercent is (offer - ask) / ask; INSTANT means the offer meets or
// beats the ask, so the item can be bought and immediately sold into the
// offer at a profit (before fees).
func Classify(listing domain.ListingSnapshot, offer *domain.OfferQuote) domain.Verdict {
	if offer == nil || listing.State != domain.ListingActive || listing.ListPriceUSD <= 0 {
		return domain.Verdict{Flag: domain.FlagNoOffer}
	}

	ask := listing.ListPriceUSD
	bid := offer.PerUnitUSD
	profitPct := (bid - ask) / ask * 100

	var flag domain.Flag
	switch {
	case bid >= ask:
		flag = domain.FlagInstant
	case profitPct >= strongThresholdPct:
		flag = domain.FlagStrong
	case profitPct >= moderateThresholdPct:
		flag = domain.FlagModerate
	default:
		flag = domain.FlagWeak
	}

	return domain.Verdict{
		Flag:          flag,
		ProfitPercent: profitPct,
		ProfitUSD:     bid - ask,
	}
}
