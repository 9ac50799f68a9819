// Package fees resolves exchange trading fees from tiered fee tables and
// splits an order's cost between its maker and taker portions.
package fees

import (
	"costflow/logger"
)

// Fallback keys used when a lookup level is unknown.
const (
	DefaultExchange   = "OKX"
	DefaultMarketType = "spot"
	DefaultTier       = "VIP0"
)

// TierRates maps a fee tier (e.g. "VIP0") to its rate. Rates may be negative
// for maker rebates.
type TierRates map[string]float64

// MarketRates holds the maker and taker tier tables for one market type.
type MarketRates struct {
	Maker TierRates
	Taker TierRates
}

// Table is the full nested fee structure:
// exchange -> market type -> maker|taker -> tier -> rate.
type Table map[string]map[string]MarketRates

// Breakdown is the result of a fee calculation.
type Breakdown struct {
	MakerFee      float64 `json:"maker_fee"`
	TakerFee      float64 `json:"taker_fee"`
	TotalFee      float64 `json:"total_fee"`
	EffectiveRate float64 `json:"effective_rate"`
}

// Schedule answers fee rate lookups against an immutable Table. Overrides
// produce a new Schedule; the table held by a live Schedule is never mutated,
// so concurrent simulations may share one freely.
type Schedule struct {
	table Table
	log   *logger.Log
}

// NewSchedule creates a Schedule over the default OKX fee tables.
func NewSchedule() *Schedule {
	return &Schedule{table: defaultTable(), log: logger.GetLogger()}
}

// NewScheduleWithTable creates a Schedule over a caller supplied table.
func NewScheduleWithTable(t Table) *Schedule {
	return &Schedule{table: t, log: logger.GetLogger()}
}

// defaultTable returns the published OKX spot and futures tiers.
// Source: https://www.okx.com/fees
func defaultTable() Table {
	return Table{
		"OKX": {
			"spot": MarketRates{
				Maker: TierRates{
					"VIP0": 0.0010,
					"VIP1": 0.0008,
					"VIP2": 0.0006,
					"VIP3": 0.0004,
					"VIP4": 0.0002,
					"VIP5": 0.0000,
				},
				Taker: TierRates{
					"VIP0": 0.0015,
					"VIP1": 0.0010,
					"VIP2": 0.0008,
					"VIP3": 0.0005,
					"VIP4": 0.0003,
					"VIP5": 0.0001,
				},
			},
			"futures": MarketRates{
				Maker: TierRates{
					"VIP0": 0.0002,
					"VIP1": 0.0001,
					"VIP2": 0.0000,
					"VIP3": -0.0001,
					"VIP4": -0.0002,
					"VIP5": -0.0003,
				},
				Taker: TierRates{
					"VIP0": 0.0005,
					"VIP1": 0.0004,
					"VIP2": 0.0003,
					"VIP3": 0.0002,
					"VIP4": 0.0001,
					"VIP5": 0.0000,
				},
			},
		},
	}
}

// Rate resolves the fee rate for an exchange, market type, tier and order
// role. Unknown keys fall back independently at each level (OKX, spot, VIP0)
// with a warning; the lookup never fails.
func (s *Schedule) Rate(exchange, marketType, tier string, isMaker bool) float64 {
	log := s.log.WithComponent("fee_schedule")

	markets, ok := s.table[exchange]
	if !ok {
		log.WithFields(logger.Fields{"exchange": exchange}).Warn("unknown exchange, using OKX fees")
		exchange = DefaultExchange
		markets = s.table[exchange]
	}

	rates, ok := markets[marketType]
	if !ok {
		log.WithFields(logger.Fields{"market_type": marketType}).Warn("unknown market type, using spot fees")
		marketType = DefaultMarketType
		rates = markets[marketType]
	}

	tiers := rates.Taker
	if isMaker {
		tiers = rates.Maker
	}

	rate, ok := tiers[tier]
	if !ok {
		log.WithFields(logger.Fields{"tier": tier}).Warn("unknown fee tier, using VIP0 fees")
		rate = tiers[DefaultTier]
	}
	return rate
}

// CalculateFee splits orderValue by makerProportion, applies the maker and
// taker rates to the two portions and sums them. EffectiveRate is 0 when
// orderValue is 0.
func (s *Schedule) CalculateFee(orderValue float64, exchange, marketType, tier string, makerProportion float64) Breakdown {
	makerRate := s.Rate(exchange, marketType, tier, true)
	takerRate := s.Rate(exchange, marketType, tier, false)

	makerValue := orderValue * makerProportion
	takerValue := orderValue * (1 - makerProportion)

	bd := Breakdown{
		MakerFee: makerValue * makerRate,
		TakerFee: takerValue * takerRate,
	}
	bd.TotalFee = bd.MakerFee + bd.TakerFee
	if orderValue > 0 {
		bd.EffectiveRate = bd.TotalFee / orderValue
	}
	return bd
}

// WithExchangeTiers returns a new Schedule whose table replaces the whole
// tier structure for one exchange. The receiver's table is left untouched so
// concurrent readers keep a consistent view.
func (s *Schedule) WithExchangeTiers(exchange string, tiers map[string]MarketRates) *Schedule {
	next := make(Table, len(s.table)+1)
	for ex, markets := range s.table {
		next[ex] = markets
	}
	next[exchange] = tiers

	s.log.WithComponent("fee_schedule").WithFields(logger.Fields{"exchange": exchange}).Info("updated fee tiers")
	return &Schedule{table: next, log: s.log}
}

// Exchanges lists the exchanges present in the table.
func (s *Schedule) Exchanges() []string {
	out := make([]string, 0, len(s.table))
	for ex := range s.table {
		out = append(out, ex)
	}
	return out
}

// Tiers lists the fee tiers available for an exchange and market type,
// empty when either key is unknown. Maker and taker tables share tiers.
func (s *Schedule) Tiers(exchange, marketType string) []string {
	markets, ok := s.table[exchange]
	if !ok {
		return nil
	}
	rates, ok := markets[marketType]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rates.Maker))
	for tier := range rates.Maker {
		out = append(out, tier)
	}
	return out
}
