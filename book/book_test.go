package book

import (
	"math"
	"strconv"
	"testing"

	"costflow/models"
)

// sampleUpdate mirrors a typical OKX swap snapshot with five levels a side.
func sampleUpdate() models.BookUpdate {
	return models.BookUpdate{
		Timestamp: "2023-05-04T10:39:13Z",
		Exchange:  "OKX",
		Symbol:    "BTC-USDT-SWAP",
		Asks: [][2]string{
			{"45002.0", "3.0"},
			{"45000.5", "1.5"},
			{"45004.0", "5.0"},
			{"45001.0", "2.0"},
			{"45003.0", "4.0"},
		},
		Bids: [][2]string{
			{"44998.0", "3.0"},
			{"44999.5", "1.0"},
			{"44996.0", "5.0"},
			{"44999.0", "2.0"},
			{"44997.0", "4.0"},
		},
	}
}

func updatedBook(t *testing.T) *Book {
	t.Helper()
	b := New(DefaultMaxDepth)
	if d := b.Update(sampleUpdate()); d < 0 {
		t.Fatalf("negative processing latency: %v", d)
	}
	return b
}

func TestUpdateSortsAndParses(t *testing.T) {
	b := updatedBook(t)

	asks, bids := b.Levels()
	if len(asks) != 5 || len(bids) != 5 {
		t.Fatalf("unexpected level counts: %d asks, %d bids", len(asks), len(bids))
	}
	for i := 1; i < len(asks); i++ {
		if asks[i].Price < asks[i-1].Price {
			t.Errorf("asks not ascending at %d: %v", i, asks)
		}
	}
	for i := 1; i < len(bids); i++ {
		if bids[i].Price > bids[i-1].Price {
			t.Errorf("bids not descending at %d: %v", i, bids)
		}
	}
	if asks[0].Price != 45000.5 || bids[0].Price != 44999.5 {
		t.Errorf("unexpected best levels: ask %v bid %v", asks[0], bids[0])
	}
}

func TestUpdateSkipsMalformedLevels(t *testing.T) {
	b := New(DefaultMaxDepth)
	b.Update(models.BookUpdate{
		Asks: [][2]string{{"100.0", "1.0"}, {"not-a-price", "1.0"}, {"101.0", "bad-qty"}},
		Bids: [][2]string{{"99.0", "2.0"}},
	})

	asks, bids := b.Levels()
	if len(asks) != 1 || len(bids) != 1 {
		t.Fatalf("malformed levels should be skipped: %d asks, %d bids", len(asks), len(bids))
	}
}

func TestUpdateTruncatesToMaxDepth(t *testing.T) {
	b := New(3)
	u := models.BookUpdate{}
	for i := 0; i < 10; i++ {
		u.Asks = append(u.Asks, [2]string{strconv.Itoa(100 + i), "1.0"})
		u.Bids = append(u.Bids, [2]string{strconv.Itoa(99 - i), "1.0"})
	}
	b.Update(u)

	asks, bids := b.Levels()
	if len(asks) != 3 || len(bids) != 3 {
		t.Fatalf("expected 3 levels per side, got %d asks, %d bids", len(asks), len(bids))
	}
	if asks[0].Price != 100 || bids[0].Price != 99 {
		t.Errorf("truncation should keep best levels: ask %v bid %v", asks[0], bids[0])
	}
}

func TestDerivedMetrics(t *testing.T) {
	b := updatedBook(t)

	mid, ok := b.MidPrice()
	if !ok || mid != 45000.0 {
		t.Errorf("mid price: got %v (%v), want 45000.0", mid, ok)
	}
	spread, ok := b.Spread()
	if !ok || spread != 1.0 {
		t.Errorf("spread: got %v (%v), want 1.0", spread, ok)
	}
	pct, ok := b.SpreadPercentage()
	if !ok || math.Abs(pct-0.0022222) > 1e-4 {
		t.Errorf("spread percentage: got %v (%v)", pct, ok)
	}
}

func TestMetricsUnavailableOnEmptySide(t *testing.T) {
	b := New(DefaultMaxDepth)
	b.Update(models.BookUpdate{Asks: [][2]string{{"100.0", "1.0"}}})

	if !b.Empty() {
		t.Fatalf("book with empty bid side should report Empty")
	}
	if _, ok := b.MidPrice(); ok {
		t.Errorf("mid price should be unavailable")
	}
	if _, ok := b.Spread(); ok {
		t.Errorf("spread should be unavailable")
	}
	if _, ok := b.Imbalance(); ok {
		t.Errorf("imbalance should be unavailable")
	}
}

func TestVolumeAtPrice(t *testing.T) {
	b := updatedBook(t)

	if got := b.VolumeAtPrice(SideAsk, 45001.0); got != 2.0 {
		t.Errorf("ask volume at 45001.0: got %v, want 2.0", got)
	}
	if got := b.VolumeAtPrice(SideBid, 44997.0); got != 4.0 {
		t.Errorf("bid volume at 44997.0: got %v, want 4.0", got)
	}
	if got := b.VolumeAtPrice(SideAsk, 45000.0); got != 0 {
		t.Errorf("absent level should yield 0, got %v", got)
	}
}

func TestVolumeUpToPrice(t *testing.T) {
	b := updatedBook(t)

	if got := b.VolumeUpToPrice(SideAsk, 45001.0); got != 3.5 {
		t.Errorf("ask volume up to 45001.0: got %v, want 3.5", got)
	}
	if got := b.VolumeUpToPrice(SideBid, 44998.0); got != 6.0 {
		t.Errorf("bid volume down to 44998.0: got %v, want 6.0", got)
	}

	// Non-decreasing as the threshold moves away from the best price.
	prev := 0.0
	for _, p := range []float64{45000.5, 45001.0, 45002.0, 45003.0, 45004.0} {
		got := b.VolumeUpToPrice(SideAsk, p)
		if got < prev {
			t.Fatalf("cumulative volume decreased at %v: %v < %v", p, got, prev)
		}
		prev = got
	}
}

func TestPriceForVolume(t *testing.T) {
	b := updatedBook(t)

	if p, ok := b.PriceForVolume(SideAsk, 2.0); !ok || p != 45001.0 {
		t.Errorf("ask price for 2.0: got %v (%v), want 45001.0", p, ok)
	}
	if p, ok := b.PriceForVolume(SideBid, 2.0); !ok || p != 44999.0 {
		t.Errorf("bid price for 2.0: got %v (%v), want 44999.0", p, ok)
	}
	if _, ok := b.PriceForVolume(SideAsk, 1e9); ok {
		t.Errorf("insufficient depth should report no price")
	}

	// Consistency with VolumeUpToPrice: the returned price is the first at
	// which the cumulative volume reaches the request.
	p, ok := b.PriceForVolume(SideAsk, 6.0)
	if !ok {
		t.Fatalf("expected price for volume 6.0")
	}
	if got := b.VolumeUpToPrice(SideAsk, p); got < 6.0 {
		t.Errorf("cumulative volume at %v is %v, want >= 6.0", p, got)
	}
}

func TestImbalance(t *testing.T) {
	b := updatedBook(t)

	imb, ok := b.Imbalance()
	if !ok {
		t.Fatalf("imbalance should be available")
	}
	if imb < -1 || imb > 1 {
		t.Errorf("imbalance out of range: %v", imb)
	}
	// 15.0 bid volume vs 15.5 ask volume.
	want := (15.0 - 15.5) / (15.0 + 15.5)
	if math.Abs(imb-want) > 1e-12 {
		t.Errorf("imbalance: got %v, want %v", imb, want)
	}

	zero := New(DefaultMaxDepth)
	zero.Update(models.BookUpdate{
		Asks: [][2]string{{"100.0", "0"}},
		Bids: [][2]string{{"99.0", "0"}},
	})
	if imb, ok := zero.Imbalance(); !ok || imb != 0 {
		t.Errorf("zero-volume book imbalance: got %v (%v), want 0", imb, ok)
	}
}

func TestAverageProcessingTime(t *testing.T) {
	b := New(DefaultMaxDepth)
	if b.AverageProcessingTime() != 0 {
		t.Fatalf("empty window should average to 0")
	}
	for i := 0; i < 5; i++ {
		b.Update(sampleUpdate())
	}
	if b.AverageProcessingTime() < 0 {
		t.Errorf("average processing time must not be negative")
	}
}

func TestLatencyWindowBounded(t *testing.T) {
	b := New(DefaultMaxDepth)
	u := sampleUpdate()
	for i := 0; i < latencyWindow+10; i++ {
		b.Update(u)
	}
	if len(b.latencies) != latencyWindow {
		t.Fatalf("latency window grew past its bound: %d", len(b.latencies))
	}
}
