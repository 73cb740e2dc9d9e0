package arbitrage

import (
	"math"
	"testing"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

func listed(priceUSD float64) domain.ListingSnapshot {
	return domain.ListingSnapshot{State: domain.ListingActive, ListPriceUSD: priceUSD}
}

func offerUSD(perUnit float64) *domain.OfferQuote {
	return &domain.OfferQuote{PerUnitUSD: perUnit}
}

func TestClassifyTiers(t *testing.T) {
	tests := []struct {
		name  string
		ask   float64
		bid   float64
		want  domain.Flag
	}{
		{"offer above ask", 100, 120, domain.FlagInstant},
		{"offer equals ask", 100, 100, domain.FlagInstant},
		{"just below ask", 100, 99.99, domain.FlagStrong},
		{"exactly -10%", 100, 90, domain.FlagStrong},
		{"just past -10%", 100, 89.99, domain.FlagModerate},
		{"exactly -20%", 100, 80, domain.FlagModerate},
		{"just past -20%", 100, 79.99, domain.FlagWeak},
		{"far below", 100, 10, domain.FlagWeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(listed(tt.ask), offerUSD(tt.bid))
			if v.Flag != tt.want {
				t.Errorf("Classify(ask=%v, bid=%v).Flag = %v, want %v", tt.ask, tt.bid, v.Flag, tt.want)
			}
		})
	}
}

func TestClassifyProfitFigures(t *testing.T) {
	v := Classify(listed(200), offerUSD(150))
	if v.ProfitUSD != -50 {
		t.Errorf("ProfitUSD = %v, want -50", v.ProfitUSD)
	}
	if math.Abs(v.ProfitPercent-(-25)) > 1e-9 {
		t.Errorf("ProfitPercent = %v, want -25", v.ProfitPercent)
	}

	v = Classify(listed(100), offerUSD(130))
	if v.ProfitUSD != 30 || v.Flag != domain.FlagInstant {
		t.Errorf("verdict = %+v, want +30 INSTANT", v)
	}
}

func TestClassifyNoOffer(t *testing.T) {
	v := Classify(listed(100), nil)
	if v.Flag != domain.FlagNoOffer {
		t.Errorf("flag = %v, want NO_OFFER", v.Flag)
	}
	if v.ProfitUSD != 0 || v.ProfitPercent != 0 {
		t.Errorf("profit figures for NO_OFFER = %+v, want zero", v)
	}
}

func TestClassifyRejectsUnusableListing(t *testing.T) {
	unlisted := domain.ListingSnapshot{State: domain.ListingUnlisted}
	if v := Classify(unlisted, offerUSD(50)); v.Flag != domain.FlagNoOffer {
		t.Errorf("unlisted flag = %v, want NO_OFFER", v.Flag)
	}

	zeroPrice := domain.ListingSnapshot{State: domain.ListingActive, ListPriceUSD: 0}
	if v := Classify(zeroPrice, offerUSD(50)); v.Flag != domain.FlagNoOffer {
		t.Errorf("zero-price flag = %v, want NO_OFFER", v.Flag)
	}
}

func TestFlagQualifies(t *testing.T) {
	qualifying := []domain.Flag{domain.FlagInstant, domain.FlagStrong, domain.FlagModerate}
	for _, f := range qualifying {
		if !f.Qualifies() {
			t.Errorf("%v.Qualifies() = false, want true", f)
		}
	}
	for _, f := range []domain.Flag{domain.FlagWeak, domain.FlagNoOffer} {
		if f.Qualifies() {
			t.Errorf("%v.Qualifies() = true, want false", f)
		}
	}
}
