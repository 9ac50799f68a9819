package fees

import (
	"math"
	"testing"
)

func TestRateKnownKeys(t *testing.T) {
	s := NewSchedule()

	if got := s.Rate("OKX", "spot", "VIP0", true); got != 0.0010 {
		t.Errorf("spot VIP0 maker: got %v, want 0.0010", got)
	}
	if got := s.Rate("OKX", "spot", "VIP0", false); got != 0.0015 {
		t.Errorf("spot VIP0 taker: got %v, want 0.0015", got)
	}
	if got := s.Rate("OKX", "futures", "VIP3", true); got != -0.0001 {
		t.Errorf("futures VIP3 maker rebate: got %v, want -0.0001", got)
	}
}

func TestRateFallbacks(t *testing.T) {
	s := NewSchedule()
	want := s.Rate("OKX", "spot", "VIP0", false)

	cases := []struct {
		name                   string
		exchange, market, tier string
	}{
		{"unknown exchange", "NOPE", "spot", "VIP0"},
		{"unknown market type", "OKX", "options", "VIP0"},
		{"unknown tier", "OKX", "spot", "VIP99"},
		{"everything unknown", "NOPE", "options", "VIP99"},
	}
	for _, tc := range cases {
		if got := s.Rate(tc.exchange, tc.market, tc.tier, false); got != want {
			t.Errorf("%s: got %v, want fallback %v", tc.name, got, want)
		}
	}
}

func TestCalculateFee(t *testing.T) {
	s := NewSchedule()
	bd := s.CalculateFee(10000, "OKX", "spot", "VIP0", 0.4)

	wantMaker := 10000 * 0.4 * 0.0010
	wantTaker := 10000 * 0.6 * 0.0015
	if math.Abs(bd.MakerFee-wantMaker) > 1e-12 {
		t.Errorf("maker fee: got %v, want %v", bd.MakerFee, wantMaker)
	}
	if math.Abs(bd.TakerFee-wantTaker) > 1e-12 {
		t.Errorf("taker fee: got %v, want %v", bd.TakerFee, wantTaker)
	}
	if bd.TotalFee != bd.MakerFee+bd.TakerFee {
		t.Errorf("total fee is not the sum of parts: %+v", bd)
	}
	if math.Abs(bd.EffectiveRate-bd.TotalFee/10000) > 1e-15 {
		t.Errorf("effective rate: got %v", bd.EffectiveRate)
	}
}

func TestCalculateFeeZeroValue(t *testing.T) {
	s := NewSchedule()
	bd := s.CalculateFee(0, "OKX", "spot", "VIP0", 0.5)
	if bd.TotalFee != 0 || bd.EffectiveRate != 0 {
		t.Errorf("zero order value should produce zero fees: %+v", bd)
	}
}

func TestWithExchangeTiersDoesNotMutate(t *testing.T) {
	s := NewSchedule()
	override := map[string]MarketRates{
		"spot": {
			Maker: TierRates{"VIP0": 0.0001},
			Taker: TierRates{"VIP0": 0.0002},
		},
	}

	next := s.WithExchangeTiers("Binance", override)

	if got := next.Rate("Binance", "spot", "VIP0", false); got != 0.0002 {
		t.Errorf("override not visible in new schedule: got %v", got)
	}
	// Original schedule still falls back to OKX for the unknown exchange.
	if got := s.Rate("Binance", "spot", "VIP0", false); got != 0.0015 {
		t.Errorf("original schedule mutated: got %v", got)
	}
}

func TestTiers(t *testing.T) {
	s := NewSchedule()
	tiers := s.Tiers("OKX", "spot")
	if len(tiers) != 6 {
		t.Errorf("expected 6 spot tiers, got %d", len(tiers))
	}
	if got := s.Tiers("NOPE", "spot"); got != nil {
		t.Errorf("unknown exchange should yield no tiers, got %v", got)
	}
}
