package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
	"github.com/alanyoungcy/niftyarb/internal/oracle"
	"github.com/alanyoungcy/niftyarb/internal/platform/opensea"
	"github.com/alanyoungcy/niftyarb/internal/retry"
)

const testContract = "0x1a2B3c4D5e6F7a8B9c0D1e2F3a4B5c6D7e8F9A0b"

type noopLimiter struct{}

func (noopLimiter) Acquire(ctx context.Context, key string) error { return nil }

type stubCollectionAPI struct {
	calls    int
	identity domain.CollectionIdentity
	err      error
}

func (s *stubCollectionAPI) GetCollection(ctx context.Context, contract string) (domain.CollectionIdentity, error) {
	s.calls++
	if s.err != nil {
		return domain.CollectionIdentity{}, s.err
	}
	return s.identity, nil
}

type memCache struct {
	entries map[string]domain.CollectionIdentity
	sets    int
}

func (m *memCache) Get(ctx context.Context, contract string) (domain.CollectionIdentity, error) {
	if id, ok := m.entries[contract]; ok {
		return id, nil
	}
	return domain.CollectionIdentity{}, domain.ErrNotFound
}

func (m *memCache) Set(ctx context.Context, identity domain.CollectionIdentity) error {
	m.sets++
	m.entries[identity.Contract] = identity
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testPolicy() *retry.Policy {
	return retry.New(2, time.Millisecond, time.Millisecond, testLogger())
}

func TestResolveMemoizes(t *testing.T) {
	api := &stubCollectionAPI{identity: domain.CollectionIdentity{
		Contract: testContract, Name: "Cool Cats", Slug: "cool-cats", Status: domain.IdentityResolved,
	}}
	r := NewIdentityResolver(api, noopLimiter{}, testPolicy(), nil, testLogger())

	for i := 0; i < 3; i++ {
		identity, err := r.Resolve(context.Background(), testContract)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if identity.Slug != "cool-cats" {
			t.Errorf("slug = %q", identity.Slug)
		}
	}
	if api.calls != 1 {
		t.Errorf("API calls = %d, want 1", api.calls)
	}
}

func TestResolveNotFoundIsTerminal(t *testing.T) {
	api := &stubCollectionAPI{err: fmt.Errorf("%w: no such contract", domain.ErrNotFound)}
	cache := &memCache{entries: map[string]domain.CollectionIdentity{}}
	r := NewIdentityResolver(api, noopLimiter{}, testPolicy(), cache, testLogger())

	identity, err := r.Resolve(context.Background(), testContract)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if identity.Status != domain.IdentityNotFound {
		t.Errorf("status = %v, want not_found", identity.Status)
	}
	// NotFound is stable; it goes to the shared cache.
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}
}

func TestResolveFailureNotCached(t *testing.T) {
	api := &stubCollectionAPI{err: fmt.Errorf("%w: upstream down", domain.ErrTransient)}
	cache := &memCache{entries: map[string]domain.CollectionIdentity{}}
	r := NewIdentityResolver(api, noopLimiter{}, testPolicy(), cache, testLogger())

	identity, err := r.Resolve(context.Background(), testContract)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if identity.Status != domain.IdentityFailed {
		t.Errorf("status = %v, want failed", identity.Status)
	}
	if cache.sets != 0 {
		t.Errorf("cache sets = %d, want 0 for failed lookups", cache.sets)
	}
}

func TestResolvePrefersSharedCache(t *testing.T) {
	api := &stubCollectionAPI{}
	cache := &memCache{entries: map[string]domain.CollectionIdentity{
		testContract: {Contract: testContract, Slug: "cached-slug", Status: domain.IdentityResolved},
	}}
	r := NewIdentityResolver(api, noopLimiter{}, testPolicy(), cache, testLogger())

	identity, err := r.Resolve(context.Background(), testContract)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if identity.Slug != "cached-slug" {
		t.Errorf("slug = %q, want cached-slug", identity.Slug)
	}
	if api.calls != 0 {
		t.Errorf("API calls = %d, want 0", api.calls)
	}
}

type stubOfferAPI struct {
	offer *opensea.BestOffer
	err   error
	calls int
}

func (s *stubOfferAPI) GetBestOffer(ctx context.Context, slug, tokenID string) (*opensea.BestOffer, error) {
	s.calls++
	return s.offer, s.err
}

type fixedRate float64

func (f fixedRate) FetchRate(ctx context.Context) (float64, error) { return float64(f), nil }

func newOfferResolver(api OfferAPI, ethUSD float64) *OfferResolver {
	orc := oracle.New(fixedRate(ethUSD), time.Minute, oracle.DefaultFallbackUSD, testLogger())
	return NewOfferResolver(api, noopLimiter{}, testPolicy(), orc, testLogger())
}

func resolvedIdentity() domain.CollectionIdentity {
	return domain.CollectionIdentity{
		Contract: testContract, Slug: "cool-cats", Status: domain.IdentityResolved,
	}
}

func TestBestOfferPerUnitFloorDivision(t *testing.T) {
	tests := []struct {
		total    string
		quantity int
		want     string
	}{
		{"1000", 4, "250"},
		{"1000", 3, "333"},
		{"1000000000000000000", 1, "1000000000000000000"},
		{"7", 2, "3"},
	}

	for _, tt := range tests {
		total, _ := new(big.Int).SetString(tt.total, 10)
		api := &stubOfferAPI{offer: &opensea.BestOffer{
			TotalWei: total, Quantity: tt.quantity, OrderHash: "0xhash",
		}}
		r := newOfferResolver(api, 2000)

		quote, err := r.BestOffer(context.Background(), resolvedIdentity(), "1")
		if err != nil {
			t.Fatalf("BestOffer(%s/%d): %v", tt.total, tt.quantity, err)
		}
		if got := quote.PerUnitWei.String(); got != tt.want {
			t.Errorf("per-unit(%s/%d) = %s, want %s", tt.total, tt.quantity, got, tt.want)
		}
	}
}

func TestBestOfferConvertsToUSD(t *testing.T) {
	// 2 ETH total over 2 editions at $2000/ETH: $2000 per unit.
	total, _ := new(big.Int).SetString("2000000000000000000", 10)
	api := &stubOfferAPI{offer: &opensea.BestOffer{TotalWei: total, Quantity: 2}}
	r := newOfferResolver(api, 2000)

	quote, err := r.BestOffer(context.Background(), resolvedIdentity(), "1")
	if err != nil {
		t.Fatalf("BestOffer: %v", err)
	}
	if quote.PerUnitETH != 1 {
		t.Errorf("per-unit ETH = %v, want 1", quote.PerUnitETH)
	}
	if quote.PerUnitUSD != 2000 {
		t.Errorf("per-unit USD = %v, want 2000", quote.PerUnitUSD)
	}
}

func TestBestOfferSkipsUnresolvedIdentity(t *testing.T) {
	api := &stubOfferAPI{}
	r := newOfferResolver(api, 2000)

	for _, status := range []domain.IdentityStatus{domain.IdentityNotFound, domain.IdentityFailed} {
		quote, err := r.BestOffer(context.Background(),
			domain.CollectionIdentity{Contract: testContract, Status: status}, "1")
		if err != nil {
			t.Fatalf("BestOffer(%v): %v", status, err)
		}
		if quote != nil {
			t.Errorf("quote for %v identity = %+v, want nil", status, quote)
		}
	}
	if api.calls != 0 {
		t.Errorf("API calls = %d, want 0", api.calls)
	}
}

func TestBestOfferNoOffer(t *testing.T) {
	api := &stubOfferAPI{offer: nil}
	r := newOfferResolver(api, 2000)

	quote, err := r.BestOffer(context.Background(), resolvedIdentity(), "1")
	if err != nil {
		t.Fatalf("BestOffer: %v", err)
	}
	if quote != nil {
		t.Errorf("quote = %+v, want nil", quote)
	}
}

func TestBestOffer404IsNoOffer(t *testing.T) {
	api := &stubOfferAPI{err: fmt.Errorf("%w: no offers", domain.ErrNotFound)}
	r := newOfferResolver(api, 2000)

	quote, err := r.BestOffer(context.Background(), resolvedIdentity(), "1")
	if err != nil {
		t.Fatalf("BestOffer: %v", err)
	}
	if quote != nil {
		t.Errorf("quote = %+v, want nil", quote)
	}
	if api.calls != 1 {
		t.Errorf("API calls = %d, want 1 (404 is terminal)", api.calls)
	}
}
