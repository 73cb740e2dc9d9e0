// Package domain defines the core types shared across the scanner: collection
// references discovered on Nifty Gateway, listing snapshots, resolved OpenSea
// identities, offer quotes, and arbitrage verdicts.
package domain

import (
	"math/big"
	"time"
)

// ListingState describes whether a cheapest-row extraction produced a live
// listing price.
type ListingState string

const (
	// ListingActive means the row carried a resolvable list price.
	ListingActive ListingState = "listed"
	// ListingUnlisted means the list-price column showed a no-value sentinel;
	// the row's other prices are historical sales, not asks.
	ListingUnlisted ListingState = "unlisted"
	// ListingUnknown means no price could be resolved from the row at all.
	ListingUnknown ListingState = "unknown"
)

// IdentityStatus is the outcome of an OpenSea contract lookup.
type IdentityStatus string

const (
	IdentityResolved IdentityStatus = "resolved"
	IdentityNotFound IdentityStatus = "not_found"
	IdentityFailed   IdentityStatus = "failed"
)

// Flag is the arbitrage classification tier.
type Flag string

const (
	// FlagInstant: offer >= listing price, sellable at an immediate profit.
	FlagInstant Flag = "INSTANT"
	// FlagStrong: offer within 10% below the listing price.
	FlagStrong Flag = "STRONG"
	// FlagModerate: offer within 20% below the listing price.
	FlagModerate Flag = "MODERATE"
	// FlagWeak: offer more than 20% below the listing price.
	FlagWeak Flag = "WEAK"
	// FlagNoOffer: no standing offer exists for the item.
	FlagNoOffer Flag = "NO_OFFER"
)

// Qualifies reports whether the flag is worth an immediate alert.
func (f Flag) Qualifies() bool {
	switch f {
	case FlagInstant, FlagStrong, FlagModerate:
		return true
	}
	return false
}

// CollectionRef identifies one Nifty Gateway collection discovered during a
// crawl. URL is normalized (query and fragment stripped) and is the identity
// used for dedup; Contract is the EIP-55 checksummed contract address parsed
// out of the URL path.
type CollectionRef struct {
	Contract string
	URL      string
}

// ListingSnapshot is the cheapest active listing extracted from a collection's
// marketplace table. Snapshots are immutable once produced; Unlisted/Unknown
// snapshots are terminal and excluded from enrichment.
type ListingSnapshot struct {
	Ref          CollectionRef
	TokenID      string
	ItemURL      string
	ListPriceUSD float64
	State        ListingState
	ScrapedAt    time.Time
}

// CollectionIdentity is the OpenSea-side identity of a contract. Resolution is
// idempotent per contract within a run; NotFound and Failed are both terminal
// for downstream stages.
type CollectionIdentity struct {
	Contract string
	Name     string
	Slug     string
	Status   IdentityStatus
}

// OfferQuote is a normalized best standing offer from OpenSea. TotalWei is the
// raw offer amount; PerUnitWei is TotalWei floor-divided by Quantity, the
// canonical per-item value used for comparison.
type OfferQuote struct {
	TotalWei   *big.Int
	PerUnitWei *big.Int
	PerUnitETH float64
	PerUnitUSD float64
	Quantity   int
	OrderHash  string
	FetchedAt  time.Time
}

// ExchangeRate is a cached reference rate (ETH→USD) with its fetch time.
type ExchangeRate struct {
	Value     float64
	FetchedAt time.Time
}

// Verdict is the arbitrage classification for one item. Profit fields are only
// meaningful when Flag != FlagNoOffer.
type Verdict struct {
	Flag          Flag
	ProfitPercent float64
	ProfitUSD     float64
}

// ScrapedItem is the aggregate produced by a full pipeline pass over one
// discovered collection: the listing, its resolved identity, the best offer
// (if any), and the verdict.
type ScrapedItem struct {
	Ref      CollectionRef
	Listing  ListingSnapshot
	Identity CollectionIdentity
	Offer    *OfferQuote // nil when no offer exists
	Verdict  Verdict

	// ItemURL is the direct marketplace URL of the cheapest token.
	ItemURL string
	// OpenSeaURL is the asset page on the peer marketplace.
	OpenSeaURL string

	ScrapedAt time.Time
}

// ScanRun records one end-to-end sweep of the marketplace.
type ScanRun struct {
	ID            string
	StartURL      string
	StartedAt     time.Time
	FinishedAt    time.Time
	References    int
	Admitted      int
	Skipped       int
	Failed        int
	Opportunities int
}
