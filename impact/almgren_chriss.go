// Package impact implements the Almgren-Chriss market impact model.
//
// The model splits the cost of moving the market into a temporary impact
// (immediate price concession that decays after execution), a permanent
// impact (lasting price shift proportional to total size) and an execution
// risk term driven by volatility over the execution horizon. It also yields
// the closed-form optimal liquidation trajectory.
//
// Reference: Almgren, R., & Chriss, N. (2001). Optimal execution of
// portfolio transactions.
package impact

import (
	"math"
)

// Params holds the model coefficients. A Params value is immutable once a
// Model is built from it; comparison runs that vary a coefficient must pass
// their own Params per call instead of mutating a shared model.
type Params struct {
	TemporaryImpactFactor float64 // gamma
	PermanentImpactFactor float64 // eta
	MarketVolFactor       float64
	RiskAversion          float64 // psi
}

// DefaultParams returns the coefficients used when none are configured.
func DefaultParams() Params {
	return Params{
		TemporaryImpactFactor: 0.1,
		PermanentImpactFactor: 0.01,
		MarketVolFactor:       0.5,
		RiskAversion:          0.001,
	}
}

// Breakdown carries all four impact components; they are always produced
// together, never partially.
type Breakdown struct {
	TemporaryImpact float64 `json:"temporary_impact"`
	PermanentImpact float64 `json:"permanent_impact"`
	ExecutionRisk   float64 `json:"execution_risk"`
	TotalImpact     float64 `json:"total_impact"`
}

// Slice is one step of an execution schedule.
type Slice struct {
	Time      float64 `json:"time"`
	TradeSize float64 `json:"trade_size"`
}

// Model evaluates Almgren-Chriss impact estimates with fixed parameters.
type Model struct {
	params Params
}

// NewModel creates a Model. The parameters are read-only thereafter.
func NewModel(p Params) *Model {
	return &Model{params: p}
}

// Params returns the model's coefficients.
func (m *Model) Params() Params {
	return m.params
}

// EstimateImpact computes the impact of executing orderSize over
// executionTime hours at the given market state. orderbookDepth is the sum
// of resting quantities on both sides and dampens the temporary impact via a
// tanh adjustment bounded in (1, 2): deeper books reduce the marginal growth
// of impact but never eliminate it.
func (m *Model) EstimateImpact(orderSize, avgDailyVolume, volatility, midPrice, orderbookDepth, executionTime float64) Breakdown {
	var normalizedSize float64
	if avgDailyVolume > 0 {
		normalizedSize = orderSize / avgDailyVolume
	}

	tradingRate := orderSize / executionTime

	sizeScaling := 1.0
	if normalizedSize > 0 {
		sizeScaling = math.Sqrt(normalizedSize)
	}

	temporary := m.params.TemporaryImpactFactor *
		midPrice *
		tradingRate *
		sizeScaling *
		(1 + m.params.MarketVolFactor*volatility)

	if orderbookDepth > 0 {
		temporary *= 1 + math.Tanh(orderSize/orderbookDepth)
	}

	permanent := m.params.PermanentImpactFactor * midPrice * orderSize

	risk := 0.5 * m.params.RiskAversion * volatility * volatility * executionTime * orderSize * orderSize

	return Breakdown{
		TemporaryImpact: temporary,
		PermanentImpact: permanent,
		ExecutionRisk:   risk,
		TotalImpact:     temporary + permanent + risk,
	}
}

// OptimalSchedule computes the optimal execution schedule for liquidating
// totalSize over timeHorizon hours using the model's own parameters.
func (m *Model) OptimalSchedule(totalSize, timeHorizon, volatility float64) []Slice {
	return ScheduleWithParams(m.params, totalSize, timeHorizon, volatility)
}

// ScheduleWithParams computes the optimal execution schedule for an explicit
// parameter set. Comparison charts that sweep risk aversion call this with
// private Params values so the shared model is never touched.
//
// The schedule has n = max(floor(timeHorizon*4), 2) slices at evenly spaced
// times over [0, timeHorizon]. With alpha = riskAversion * volatility^2 the
// risk-neutral case (alpha == 0) trades equal sizes; the risk-averse case
// follows the closed-form trajectory
//
//	x(t) = totalSize * sinh(sqrt(alpha*gamma)*(T-t)) / sinh(sqrt(alpha*gamma)*T)
//
// with the final slice forced to the remaining inventory. Any floating-point
// residual is folded into the last slice so the sizes sum exactly to
// totalSize; conservation wins over smoothness.
func ScheduleWithParams(p Params, totalSize, timeHorizon, volatility float64) []Slice {
	n := int(timeHorizon * 4)
	if n < 2 {
		n = 2
	}

	times := make([]float64, n)
	step := timeHorizon / float64(n-1)
	for i := range times {
		times[i] = float64(i) * step
	}

	alpha := p.RiskAversion * volatility * volatility
	gamma := p.TemporaryImpactFactor

	remaining := make([]float64, n)
	trades := make([]float64, n)
	remaining[0] = totalSize

	if alpha == 0 {
		perStep := totalSize / float64(n-1)
		for i := 0; i < n-1; i++ {
			trades[i] = perStep
		}
		for i := 1; i < n; i++ {
			remaining[i] = remaining[i-1] - trades[i-1]
		}
	} else {
		kappa := math.Sqrt(alpha * gamma)
		sinhT := math.Sinh(kappa * timeHorizon)
		for i := 1; i < n; i++ {
			remaining[i] = totalSize * math.Sinh(kappa*(timeHorizon-times[i])) / sinhT
		}
		for i := 0; i < n-1; i++ {
			trades[i] = remaining[i] - remaining[i+1]
		}
		trades[n-1] = remaining[n-1]
	}

	var sum float64
	for _, tr := range trades {
		sum += tr
	}
	if diff := totalSize - sum; math.Abs(diff) > 1e-10 {
		trades[n-1] += diff
	}

	schedule := make([]Slice, n)
	for i := range schedule {
		schedule[i] = Slice{Time: times[i], TradeSize: trades[i]}
	}
	return schedule
}
