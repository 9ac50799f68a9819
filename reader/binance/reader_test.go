package binance

import (
	"testing"
	"time"

	appconfig "costflow/config"
	"costflow/internal/channel"

	futures "github.com/adshao/go-binance/v2/futures"
)

func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{Timeout: time.Second},
		Source: appconfig.SourceConfig{
			Binance: appconfig.BinanceSourceConfig{
				Orderbook: appconfig.BinanceOrderbookConfig{
					Snapshots: appconfig.BinanceSnapshotConfig{
						Enabled:    true,
						Limit:      50,
						IntervalMs: 1000,
						MarketType: "futures",
					},
				},
			},
		},
	}
}

func TestNewReader(t *testing.T) {
	ch := channel.NewChannels(1)
	if r := NewReader(minimalConfig(), ch, []string{"BTCUSDT"}); r == nil {
		t.Fatal("NewReader returned nil")
	}
}

func TestConvertDepth(t *testing.T) {
	res := &futures.DepthResponse{
		LastUpdateID: 42,
		Time:         1700000000000,
		Asks: []futures.Ask{
			{Price: "45000.5", Quantity: "1.5"},
			{Price: "45001.0", Quantity: "2.0"},
		},
		Bids: []futures.Bid{
			{Price: "44999.5", Quantity: "1.0"},
		},
	}

	update := convertDepth("BTCUSDT", res)
	if update.Exchange != "binance" || update.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected identity: %+v", update)
	}
	if update.Timestamp != "1700000000000" {
		t.Errorf("unexpected timestamp: %s", update.Timestamp)
	}
	if len(update.Asks) != 2 || update.Asks[0] != [2]string{"45000.5", "1.5"} {
		t.Errorf("unexpected asks: %+v", update.Asks)
	}
	if len(update.Bids) != 1 || update.Bids[0] != [2]string{"44999.5", "1.0"} {
		t.Errorf("unexpected bids: %+v", update.Bids)
	}
}

func TestConvertDepthZeroTime(t *testing.T) {
	update := convertDepth("BTCUSDT", &futures.DepthResponse{})
	if update.Timestamp == "" || update.Timestamp == "0" {
		t.Errorf("missing exchange time should fall back to wall clock, got %q", update.Timestamp)
	}
}
