package book

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"costflow/models"
)

const (
	// DefaultMaxDepth is the number of price levels kept per side.
	DefaultMaxDepth = 50

	// latencyWindow bounds the update latency history.
	latencyWindow = 1000

	// priceEpsilon is the tolerance used for exact price lookups.
	priceEpsilon = 1e-8
)

// Side selects one of the two ladders of the book.
type Side string

const (
	SideAsk Side = "ask"
	SideBid Side = "bid"
)

// Book holds the best-known L2 order book for a single instrument together
// with a bounded window of update processing latencies.
//
// Every update replaces the previous book wholesale; readers always observe a
// complete snapshot, never a mix of two updates or a partially sorted side.
type Book struct {
	mu       sync.RWMutex
	maxDepth int

	asks      []models.BookLevel // ascending by price
	bids      []models.BookLevel // descending by price
	timestamp string
	exchange  string
	symbol    string

	latencies []time.Duration
	latNext   int
	latFull   bool
}

// New creates an empty book keeping at most maxDepth levels per side.
// Non-positive maxDepth falls back to DefaultMaxDepth.
func New(maxDepth int) *Book {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Book{
		maxDepth:  maxDepth,
		latencies: make([]time.Duration, 0, latencyWindow),
	}
}

// Update parses the snapshot, sorts asks ascending and bids descending by
// price, truncates both sides to the configured depth and atomically replaces
// the previous book. Levels with unparsable price or quantity strings are
// skipped. The wall-clock processing latency is recorded and returned.
func (b *Book) Update(u models.BookUpdate) time.Duration {
	start := time.Now()

	asks := parseLevels(u.Asks)
	bids := parseLevels(u.Bids)

	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })

	if len(asks) > b.maxDepth {
		asks = asks[:b.maxDepth]
	}
	if len(bids) > b.maxDepth {
		bids = bids[:b.maxDepth]
	}

	elapsed := time.Since(start)

	b.mu.Lock()
	b.asks = asks
	b.bids = bids
	b.timestamp = u.Timestamp
	b.exchange = u.Exchange
	b.symbol = u.Symbol
	b.recordLatency(elapsed)
	b.mu.Unlock()

	return elapsed
}

func parseLevels(raw [][2]string) []models.BookLevel {
	levels := make([]models.BookLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			continue
		}
		levels = append(levels, models.BookLevel{Price: price, Quantity: qty})
	}
	return levels
}

// recordLatency appends to the bounded latency window, evicting the oldest
// entry once the window is full. Caller must hold the write lock.
func (b *Book) recordLatency(d time.Duration) {
	if len(b.latencies) < latencyWindow {
		b.latencies = append(b.latencies, d)
		return
	}
	b.latencies[b.latNext] = d
	b.latNext = (b.latNext + 1) % latencyWindow
	b.latFull = true
}

// Empty reports whether either side of the book has no levels.
func (b *Book) Empty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.asks) == 0 || len(b.bids) == 0
}

// Timestamp returns the timestamp carried by the last applied snapshot.
func (b *Book) Timestamp() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timestamp
}

// Exchange returns the exchange of the last applied snapshot.
func (b *Book) Exchange() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exchange
}

// Symbol returns the instrument of the last applied snapshot.
func (b *Book) Symbol() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.symbol
}

// Levels returns copies of both sides in their sorted order.
func (b *Book) Levels() (asks, bids []models.BookLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	asks = append([]models.BookLevel(nil), b.asks...)
	bids = append([]models.BookLevel(nil), b.bids...)
	return asks, bids
}

// MidPrice returns the average of best bid and best ask. The second return
// value is false when either side is empty.
func (b *Book) MidPrice() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 || len(b.bids) == 0 {
		return 0, false
	}
	return (b.asks[0].Price + b.bids[0].Price) / 2, true
}

// Spread returns best ask minus best bid, or false when either side is empty.
func (b *Book) Spread() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 || len(b.bids) == 0 {
		return 0, false
	}
	return b.asks[0].Price - b.bids[0].Price, true
}

// SpreadPercentage returns the spread as a percentage of the mid price.
// It is unavailable when either side is empty or the mid price is zero.
func (b *Book) SpreadPercentage() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 || len(b.bids) == 0 {
		return 0, false
	}
	mid := (b.asks[0].Price + b.bids[0].Price) / 2
	if mid == 0 {
		return 0, false
	}
	spread := b.asks[0].Price - b.bids[0].Price
	return spread / mid * 100, true
}

// VolumeAtPrice returns the quantity resting at an exact price level on the
// given side, comparing prices within a small epsilon. Absent levels yield 0.
func (b *Book) VolumeAtPrice(side Side, price float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, lvl := range b.side(side) {
		if diff := lvl.Price - price; diff < priceEpsilon && diff > -priceEpsilon {
			return lvl.Quantity
		}
	}
	return 0
}

// VolumeUpToPrice returns the cumulative quantity of the side's prefix whose
// levels satisfy the threshold (price <= threshold for asks, >= for bids).
// The scan stops at the first level outside the threshold; it is a prefix
// sum over the sorted side, not a filter.
func (b *Book) VolumeUpToPrice(side Side, price float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var volume float64
	for _, lvl := range b.side(side) {
		if side == SideAsk && lvl.Price > price {
			break
		}
		if side == SideBid && lvl.Price < price {
			break
		}
		volume += lvl.Quantity
	}
	return volume
}

// PriceForVolume walks the side in sorted order and returns the price of the
// first level at which the accumulated quantity reaches the requested volume.
// The second return value is false when total depth is insufficient.
func (b *Book) PriceForVolume(side Side, volume float64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	remaining := volume
	for _, lvl := range b.side(side) {
		remaining -= lvl.Quantity
		if remaining <= 0 {
			return lvl.Price, true
		}
	}
	return 0, false
}

// Imbalance returns (bidVolume-askVolume)/(bidVolume+askVolume), 0 when both
// volumes are zero. It is unavailable when either side is empty.
func (b *Book) Imbalance() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 || len(b.bids) == 0 {
		return 0, false
	}

	var bidVolume, askVolume float64
	for _, lvl := range b.bids {
		bidVolume += lvl.Quantity
	}
	for _, lvl := range b.asks {
		askVolume += lvl.Quantity
	}
	if bidVolume+askVolume == 0 {
		return 0, true
	}
	return (bidVolume - askVolume) / (bidVolume + askVolume), true
}

// Depth returns the sum of all resting quantities on both sides.
func (b *Book) Depth() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total float64
	for _, lvl := range b.bids {
		total += lvl.Quantity
	}
	for _, lvl := range b.asks {
		total += lvl.Quantity
	}
	return total
}

// AverageProcessingTime returns the mean update latency over the bounded
// window, 0 when no updates have been applied.
func (b *Book) AverageProcessingTime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.latencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range b.latencies {
		sum += d
	}
	return sum / time.Duration(len(b.latencies))
}

// side returns the requested ladder; callers must hold at least a read lock.
func (b *Book) side(s Side) []models.BookLevel {
	if s == SideAsk {
		return b.asks
	}
	return b.bids
}
