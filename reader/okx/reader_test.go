package okx

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appconfig "costflow/config"
	"costflow/internal/channel"
	"costflow/logger"
	"costflow/models"
)

// minimalConfig returns a minimal configuration required for testing.
func minimalConfig() *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{Timeout: time.Second},
		Source: appconfig.SourceConfig{
			Okx: appconfig.OkxSourceConfig{
				Orderbook: appconfig.OkxOrderbookConfig{
					Snapshots: appconfig.OkxSnapshotConfig{
						Enabled:    true,
						URL:        "wss://example.com/ws",
						Channel:    "books",
						MarketType: "spot",
					},
				},
			},
		},
	}
}

func TestNewReader(t *testing.T) {
	ch := channel.NewChannels(1)
	if r := NewReader(minimalConfig(), ch, []string{"BTC-USDT"}); r == nil {
		t.Fatal("NewReader returned nil")
	}
}

func TestProcessMessage(t *testing.T) {
	ch := channel.NewChannels(1)
	r := &Reader{config: minimalConfig(), channels: ch, ctx: context.Background(), log: logger.GetLogger()}

	raw := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"snapshot","data":[{"bids":[["44999.5","1.0","0","1"]],"asks":[["45000.5","1.5","0","2"]],"ts":"1700000000000"}]}`)
	if !r.processMessage(raw) {
		t.Fatal("processMessage returned false for a book event")
	}

	select {
	case msg := <-ch.Raw:
		var update models.BookUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if update.Symbol != "BTC-USDT" || update.Exchange != "okx" {
			t.Fatalf("unexpected update: %+v", update)
		}
		if len(update.Asks) != 1 || update.Asks[0] != [2]string{"45000.5", "1.5"} {
			t.Fatalf("unexpected asks: %+v", update.Asks)
		}
		if len(update.Bids) != 1 || update.Bids[0] != [2]string{"44999.5", "1.0"} {
			t.Fatalf("unexpected bids: %+v", update.Bids)
		}
		if update.Timestamp != "1700000000000" {
			t.Fatalf("unexpected timestamp: %s", update.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestProcessMessageNonData(t *testing.T) {
	ch := channel.NewChannels(1)
	r := &Reader{config: minimalConfig(), channels: ch, ctx: context.Background(), log: logger.GetLogger()}

	if r.processMessage([]byte("pong")) {
		t.Errorf("pong frame should not produce a message")
	}
	if r.processMessage([]byte(`{"event":"subscribe","arg":{"channel":"books","instId":"BTC-USDT"}}`)) {
		t.Errorf("subscribe ack should not produce a message")
	}
	if r.processMessage([]byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"data":[]}`)) {
		t.Errorf("empty data should not produce a message")
	}
	if len(ch.Raw) != 0 {
		t.Errorf("channel should be empty, has %d messages", len(ch.Raw))
	}
}
