package channel

import (
	"context"
	"testing"
	"time"

	"costflow/models"
)

func TestNewChannels(t *testing.T) {
	c := NewChannels(1)
	if c.Raw == nil {
		t.Fatalf("expected non-nil raw channel")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.StartMetricsReporting(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	c.Close()
}

func TestSendRawDropsWhenFull(t *testing.T) {
	c := NewChannels(1)
	defer c.Close()
	ctx := context.Background()

	msg := models.RawBookMessage{Exchange: "okx", Symbol: "BTC-USDT", Data: []byte("{}")}
	if !c.SendRaw(ctx, msg) {
		t.Fatalf("first send should succeed")
	}
	if c.SendRaw(ctx, msg) {
		t.Fatalf("second send should drop on a full buffer")
	}

	stats := c.GetStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Errorf("stats = %+v, want 1 sent and 1 dropped", stats)
	}
}

func TestSendRawCancelledContext(t *testing.T) {
	c := NewChannels(0)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c.SendRaw(ctx, models.RawBookMessage{}) {
		t.Fatalf("send on cancelled context should fail")
	}
}
