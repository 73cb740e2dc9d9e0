package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"
)

type stubFetcher struct {
	rate  float64
	err   error
	calls int
}

func (s *stubFetcher) FetchRate(context.Context) (float64, error) {
	s.calls++
	return s.rate, s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateCachedWithinTTL(t *testing.T) {
	f := &stubFetcher{rate: 3000}
	o := New(f, time.Minute, 0, discard())
	ctx := context.Background()

	// Two conversions inside the TTL window must issue a single fetch.
	o.WeiToUSD(ctx, big.NewInt(1e18))
	o.WeiToUSD(ctx, big.NewInt(2e18))

	if f.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", f.calls)
	}
}

func TestStaleRateRefreshed(t *testing.T) {
	f := &stubFetcher{rate: 3000}
	o := New(f, time.Millisecond, 0, discard())
	ctx := context.Background()

	o.Rate(ctx)
	time.Sleep(5 * time.Millisecond)
	o.Rate(ctx)

	if f.calls != 2 {
		t.Errorf("expected 2 fetches across TTL expiry, got %d", f.calls)
	}
}

func TestFetchFailureUsesLastKnownRate(t *testing.T) {
	f := &stubFetcher{rate: 3000}
	o := New(f, time.Millisecond, 0, discard())
	ctx := context.Background()

	if got := o.Rate(ctx); got != 3000 {
		t.Fatalf("initial rate = %v", got)
	}

	f.err = errors.New("connection refused")
	time.Sleep(5 * time.Millisecond)

	if got := o.Rate(ctx); got != 3000 {
		t.Errorf("expected last known rate 3000, got %v", got)
	}
}

func TestFetchFailureWithoutHistoryUsesFallback(t *testing.T) {
	f := &stubFetcher{err: errors.New("down")}
	o := New(f, time.Minute, 0, discard())

	if got := o.Rate(context.Background()); got != DefaultFallbackUSD {
		t.Errorf("expected fallback %v, got %v", float64(DefaultFallbackUSD), got)
	}
}

func TestWeiToUSD(t *testing.T) {
	f := &stubFetcher{rate: 2000}
	o := New(f, time.Minute, 0, discard())

	eth, usd := o.WeiToUSD(context.Background(), big.NewInt(5e17)) // 0.5 ETH
	if eth != 0.5 {
		t.Errorf("eth = %v, want 0.5", eth)
	}
	if usd != 1000 {
		t.Errorf("usd = %v, want 1000", usd)
	}
}

func TestConvertScalesByDecimals(t *testing.T) {
	f := &stubFetcher{rate: 10}
	o := New(f, time.Minute, 0, discard())

	got := o.Convert(context.Background(), big.NewInt(2500), 3) // 2.5 units
	if got != 25 {
		t.Errorf("Convert = %v, want 25", got)
	}
}
