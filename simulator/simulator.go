// Package simulator combines the order book, fee schedule, impact model and
// estimators into on-demand execution cost simulations.
package simulator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"costflow/book"
	"costflow/estimator"
	"costflow/fees"
	"costflow/impact"
	"costflow/logger"
)

// latencyWindow bounds the simulation latency history.
const latencyWindow = 1000

// avgDailyVolumeMultiplier scales visible book depth into a daily volume
// proxy. True traded-volume history is not modeled; depth stands in for it.
const avgDailyVolumeMultiplier = 100

// Simulation failures surfaced to callers. Everything else (unknown fee
// tiers, unfitted estimators) is recovered internally.
var (
	ErrEmptyOrderBook = errors.New("order book is empty")
	ErrInvalidMetrics = errors.New("order book metrics unavailable")
)

// Side of a prospective market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalizes a textual side. Anything other than buy or sell is a
// caller error.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown order side: %q", s)
}

// CostEstimate is the immutable result of one simulation. All intermediate
// components are exposed so callers can render a full breakdown.
type CostEstimate struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`

	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`

	MidPrice       float64 `json:"mid_price"`
	ExecutionPrice float64 `json:"execution_price"`
	OrderValue     float64 `json:"order_value"`

	MakerProportion float64        `json:"maker_proportion"`
	Fees            fees.Breakdown `json:"fees"`

	Slippage    float64 `json:"slippage"`
	SlippagePct float64 `json:"slippage_pct"`

	Impact    impact.Breakdown `json:"impact"`
	ImpactPct float64          `json:"impact_pct"`

	NetCost    float64 `json:"net_cost"`
	NetCostPct float64 `json:"net_cost_pct"`

	ProcessingTime time.Duration `json:"processing_time_ns"`
}

// Simulator answers cost queries against the live book. It is safe for
// concurrent use with the feed that updates the book.
type Simulator struct {
	book       *book.Book
	impact     *impact.Model
	slippage   *estimator.Slippage
	makerTaker *estimator.MakerTaker
	log        *logger.Log

	mu       sync.RWMutex
	schedule *fees.Schedule

	latMu     sync.Mutex
	latencies []time.Duration
	latNext   int
}

// New creates a Simulator over the given book with default fee tables.
func New(b *book.Book, m *impact.Model, sl *estimator.Slippage, mt *estimator.MakerTaker) *Simulator {
	return &Simulator{
		book:       b,
		impact:     m,
		slippage:   sl,
		makerTaker: mt,
		schedule:   fees.NewSchedule(),
		log:        logger.GetLogger(),
		latencies:  make([]time.Duration, 0, latencyWindow),
	}
}

// FeeSchedule returns the schedule simulations currently read.
func (s *Simulator) FeeSchedule() *fees.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule
}

// SetFeeTiers replaces the whole tier structure for one exchange. In-flight
// simulations keep reading the schedule they started with.
func (s *Simulator) SetFeeTiers(exchange string, tiers map[string]fees.MarketRates) {
	s.mu.Lock()
	s.schedule = s.schedule.WithExchangeTiers(exchange, tiers)
	s.mu.Unlock()
}

// Simulate estimates the total cost of executing a market order of the given
// quantity against the current book. It returns ErrEmptyOrderBook before any
// snapshot has been ingested and ErrInvalidMetrics when the book metrics
// cannot be derived; both leave no partial result.
func (s *Simulator) Simulate(side Side, quantity float64, exchange, marketType, feeTier string, volatility float64) (*CostEstimate, error) {
	start := time.Now()
	log := s.log.WithComponent("simulator")

	if s.book.Empty() {
		log.WithFields(logger.Fields{"side": side, "quantity": quantity}).Warn("simulate called on empty order book")
		return nil, ErrEmptyOrderBook
	}

	midPrice, okMid := s.book.MidPrice()
	spread, okSpread := s.book.Spread()
	imbalance, okImb := s.book.Imbalance()
	if !okMid || !okSpread || !okImb {
		log.Warn("order book metrics unavailable despite non-empty sides")
		return nil, ErrInvalidMetrics
	}

	orderValue := quantity * midPrice

	makerProportion := s.makerTaker.Estimate(quantity, spread, volatility, imbalance)
	feeBreakdown := s.FeeSchedule().CalculateFee(orderValue, exchange, marketType, feeTier, makerProportion)
	slippage := s.slippage.Estimate(quantity, spread, volatility, imbalance)

	depth := s.book.Depth()
	avgDailyVolume := depth * avgDailyVolumeMultiplier
	impactBreakdown := s.impact.EstimateImpact(quantity, avgDailyVolume, volatility, midPrice, depth, 1.0)

	netCost := feeBreakdown.TotalFee + slippage + impactBreakdown.TotalImpact

	var slippagePct, impactPct, netCostPct float64
	if orderValue > 0 {
		slippagePct = slippage / orderValue * 100
		impactPct = impactBreakdown.TotalImpact / orderValue * 100
		netCostPct = netCost / orderValue * 100
	}

	// Buys are pushed up and sells pushed down by the same per-unit cost.
	direction := 1.0
	if side == SideSell {
		direction = -1.0
	}
	executionPrice := midPrice
	if quantity > 0 {
		executionPrice += direction * (slippage + impactBreakdown.TemporaryImpact) / quantity
	}

	elapsed := time.Since(start)
	s.recordLatency(elapsed)
	logger.IncrementSimulation()

	estimate := &CostEstimate{
		ID:              uuid.New().String(),
		Timestamp:       time.Now().UTC(),
		Exchange:        s.book.Exchange(),
		Symbol:          s.book.Symbol(),
		Side:            side,
		Quantity:        quantity,
		MidPrice:        midPrice,
		ExecutionPrice:  executionPrice,
		OrderValue:      orderValue,
		MakerProportion: makerProportion,
		Fees:            feeBreakdown,
		Slippage:        slippage,
		SlippagePct:     slippagePct,
		Impact:          impactBreakdown,
		ImpactPct:       impactPct,
		NetCost:         netCost,
		NetCostPct:      netCostPct,
		ProcessingTime:  elapsed,
	}

	log.WithFields(logger.Fields{
		"id":           estimate.ID,
		"side":         side,
		"quantity":     quantity,
		"net_cost":     netCost,
		"net_cost_pct": netCostPct,
		"duration_ms":  float64(elapsed.Nanoseconds()) / 1e6,
	}).Debug("completed cost simulation")

	return estimate, nil
}

// ExecutionSchedule returns the optimal multi-slice schedule for liquidating
// totalSize over timeHorizon hours at the given volatility.
func (s *Simulator) ExecutionSchedule(totalSize, timeHorizon, volatility float64) []impact.Slice {
	return s.impact.OptimalSchedule(totalSize, timeHorizon, volatility)
}

func (s *Simulator) recordLatency(d time.Duration) {
	s.latMu.Lock()
	defer s.latMu.Unlock()
	if len(s.latencies) < latencyWindow {
		s.latencies = append(s.latencies, d)
		return
	}
	s.latencies[s.latNext] = d
	s.latNext = (s.latNext + 1) % latencyWindow
}

// AverageProcessingTime returns the mean simulation latency over the bounded
// window, 0 when no simulations have run.
func (s *Simulator) AverageProcessingTime() time.Duration {
	s.latMu.Lock()
	defer s.latMu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s.latencies {
		sum += d
	}
	return sum / time.Duration(len(s.latencies))
}
