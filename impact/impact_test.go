package impact

import (
	"math"
	"testing"
)

func TestEstimateImpactComponents(t *testing.T) {
	m := NewModel(DefaultParams())
	bd := m.EstimateImpact(1.0, 3050, 0.01, 45000, 30.5, 1.0)

	if bd.TemporaryImpact <= 0 {
		t.Errorf("temporary impact should be positive, got %v", bd.TemporaryImpact)
	}
	if bd.PermanentImpact <= 0 {
		t.Errorf("permanent impact should be positive, got %v", bd.PermanentImpact)
	}
	if bd.ExecutionRisk <= 0 {
		t.Errorf("execution risk should be positive, got %v", bd.ExecutionRisk)
	}
	want := bd.TemporaryImpact + bd.PermanentImpact + bd.ExecutionRisk
	if bd.TotalImpact != want {
		t.Errorf("total impact %v != sum of components %v", bd.TotalImpact, want)
	}
}

func TestEstimateImpactZeroVolume(t *testing.T) {
	m := NewModel(DefaultParams())
	bd := m.EstimateImpact(1.0, 0, 0.01, 45000, 30.5, 1.0)

	// avgDailyVolume <= 0 means no normalization; sizeScaling stays 1.0 and
	// the estimate must still be finite and positive.
	if math.IsNaN(bd.TotalImpact) || math.IsInf(bd.TotalImpact, 0) {
		t.Fatalf("impact not finite: %v", bd.TotalImpact)
	}
	if bd.TotalImpact <= 0 {
		t.Errorf("impact should remain positive, got %v", bd.TotalImpact)
	}
}

func TestDepthAdjustmentBounds(t *testing.T) {
	m := NewModel(DefaultParams())

	shallow := m.EstimateImpact(10, 1000, 0.01, 45000, 1, 1.0)
	deep := m.EstimateImpact(10, 1000, 0.01, 45000, 1e6, 1.0)

	if shallow.TemporaryImpact <= deep.TemporaryImpact {
		t.Errorf("shallower book should cost more: shallow %v, deep %v",
			shallow.TemporaryImpact, deep.TemporaryImpact)
	}
	// tanh bounds the adjustment below a factor of 2.
	if shallow.TemporaryImpact >= 2*deep.TemporaryImpact*1.0001 {
		t.Errorf("depth adjustment exceeded its bound: shallow %v, deep %v",
			shallow.TemporaryImpact, deep.TemporaryImpact)
	}
}

func scheduleTotal(s []Slice) float64 {
	var sum float64
	for _, sl := range s {
		sum += sl.TradeSize
	}
	return sum
}

func TestScheduleRiskNeutral(t *testing.T) {
	p := DefaultParams()
	p.RiskAversion = 0

	s := ScheduleWithParams(p, 100, 2.0, 0.01)
	if len(s) != 8 {
		t.Fatalf("expected 8 slices for a 2h horizon, got %d", len(s))
	}
	if got := scheduleTotal(s); math.Abs(got-100) > 1e-9 {
		t.Errorf("trade sizes sum to %v, want 100", got)
	}
	// Equal-sized trades over the first n-1 slices.
	per := 100.0 / 7.0
	for i := 0; i < 7; i++ {
		if math.Abs(s[i].TradeSize-per) > 1e-9 {
			t.Errorf("slice %d size %v, want %v", i, s[i].TradeSize, per)
		}
	}
}

func TestScheduleRiskAverse(t *testing.T) {
	p := DefaultParams()
	p.RiskAversion = 0.01

	s := ScheduleWithParams(p, 100, 4.0, 0.5)
	if len(s) != 16 {
		t.Fatalf("expected 16 slices for a 4h horizon, got %d", len(s))
	}
	if got := scheduleTotal(s); math.Abs(got-100) > 1e-9 {
		t.Errorf("trade sizes sum to %v, want 100", got)
	}

	// Remaining inventory starts at totalSize and ends at zero.
	remaining := 100.0
	for _, sl := range s {
		remaining -= sl.TradeSize
	}
	if math.Abs(remaining) > 1e-9 {
		t.Errorf("terminal inventory %v, want 0", remaining)
	}

	// A risk-averse trader front-loads execution.
	if s[0].TradeSize <= s[len(s)-2].TradeSize {
		t.Errorf("expected front-loaded schedule: first %v, penultimate %v",
			s[0].TradeSize, s[len(s)-2].TradeSize)
	}
}

func TestScheduleMinimumSlices(t *testing.T) {
	s := ScheduleWithParams(DefaultParams(), 10, 0.1, 0.01)
	if len(s) != 2 {
		t.Fatalf("short horizons must still produce 2 slices, got %d", len(s))
	}
	if got := scheduleTotal(s); math.Abs(got-10) > 1e-9 {
		t.Errorf("trade sizes sum to %v, want 10", got)
	}
}

func TestScheduleRiskAversionSweepLeavesModelUntouched(t *testing.T) {
	m := NewModel(DefaultParams())
	before := m.Params()

	for _, psi := range []float64{0, 0.001, 0.01, 0.1} {
		p := before
		p.RiskAversion = psi
		s := ScheduleWithParams(p, 50, 1.0, 0.3)
		if got := scheduleTotal(s); math.Abs(got-50) > 1e-9 {
			t.Errorf("psi=%v: trade sizes sum to %v, want 50", psi, got)
		}
	}

	if m.Params() != before {
		t.Errorf("model parameters changed during sweep: %+v", m.Params())
	}
}
