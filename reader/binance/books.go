// Package binance polls Binance futures REST depth snapshots and forwards
// them into the raw book channel. It is the alternative feed source next to
// the OKX websocket stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	appconfig "costflow/config"
	"costflow/internal/channel"
	"costflow/logger"
	"costflow/models"

	futures "github.com/adshao/go-binance/v2/futures"
)

// Reader fetches order book depth snapshots from Binance on a fixed interval
// per symbol.
type Reader struct {
	config   *appconfig.Config
	client   *futures.Client
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	symbols  []string
}

// NewReader creates a new Binance depth reader using the go-binance client.
func NewReader(cfg *appconfig.Config, ch *channel.Channels, symbols []string) *Reader {
	log := logger.GetLogger()

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: cfg.Reader.Timeout}

	reader := &Reader{
		config:   cfg,
		client:   client,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      log,
		symbols:  symbols,
	}

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbols": symbols,
		"timeout": cfg.Reader.Timeout,
	}).Info("binance reader initialized")

	return reader
}

// Start begins fetching depth snapshots for the configured symbols.
func (br *Reader) Start(ctx context.Context) error {
	br.mu.Lock()
	if br.running {
		br.mu.Unlock()
		return fmt.Errorf("binance reader already running")
	}
	br.running = true
	br.ctx = ctx
	br.mu.Unlock()

	log := br.log.WithComponent("binance_reader").WithFields(logger.Fields{"operation": "start"})

	snapshotCfg := br.config.Source.Binance.Orderbook.Snapshots
	if !snapshotCfg.Enabled {
		log.Warn("binance orderbook snapshots are disabled")
		return fmt.Errorf("binance orderbook snapshots are disabled")
	}

	log.WithFields(logger.Fields{
		"symbols":  br.symbols,
		"interval": snapshotCfg.IntervalMs,
	}).Info("starting binance reader")

	for _, symbol := range br.symbols {
		br.wg.Add(1)
		go br.fetchWorker(symbol, snapshotCfg)
	}

	log.Info("binance reader started successfully")
	return nil
}

// Stop signals all workers to stop and waits for completion.
func (br *Reader) Stop() {
	br.mu.Lock()
	br.running = false
	br.mu.Unlock()

	br.log.WithComponent("binance_reader").Info("stopping binance reader")
	br.wg.Wait()
	br.log.WithComponent("binance_reader").Info("binance reader stopped")
}

func (br *Reader) fetchWorker(symbol string, snapshotCfg appconfig.BinanceSnapshotConfig) {
	defer br.wg.Done()

	log := br.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "depth_fetcher",
	})

	log.Info("starting depth worker")

	interval := time.Duration(snapshotCfg.IntervalMs) * time.Millisecond

	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-br.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			br.fetchDepth(symbol, snapshotCfg)
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": snapshotCfg.IntervalMs,
				}).Warn("fetch took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

func (br *Reader) fetchDepth(symbol string, snapshotCfg appconfig.BinanceSnapshotConfig) {
	log := br.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol":    symbol,
		"operation": "fetch_depth",
	})

	start := time.Now()
	res, err := br.client.NewDepthService().
		Symbol(symbol).
		Limit(snapshotCfg.Limit).
		Do(br.ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch depth snapshot")
		logger.IncrementReaderRetry()
		return
	}
	logger.LogPerformanceEntry(log, "binance_reader", "api_request", time.Since(start), logger.Fields{
		"symbol": symbol,
	})

	update := convertDepth(symbol, res)
	payload, err := json.Marshal(update)
	if err != nil {
		log.WithError(err).Warn("failed to marshal depth snapshot")
		return
	}

	rawData := models.RawBookMessage{
		Exchange:    "binance",
		Symbol:      symbol,
		Market:      snapshotCfg.MarketType,
		Timestamp:   time.Now().UTC(),
		Data:        payload,
		MessageType: "snapshot",
	}

	if br.channels.SendRaw(br.ctx, rawData) {
		logger.IncrementSnapshotRead(len(payload))
	} else if br.ctx.Err() != nil {
		return
	} else {
		log.Warn("raw channel is full, dropping data")
	}
}

// convertDepth maps a go-binance depth response onto the ingestion snapshot
// format. Depth levels arrive as decimal strings and are passed through
// unchanged.
func convertDepth(symbol string, res *futures.DepthResponse) models.BookUpdate {
	ts := res.Time
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	update := models.BookUpdate{
		Timestamp: strconv.FormatInt(ts, 10),
		Exchange:  "binance",
		Symbol:    symbol,
		Asks:      make([][2]string, 0, len(res.Asks)),
		Bids:      make([][2]string, 0, len(res.Bids)),
	}
	for _, a := range res.Asks {
		update.Asks = append(update.Asks, [2]string{a.Price, a.Quantity})
	}
	for _, b := range res.Bids {
		update.Bids = append(update.Bids, [2]string{b.Price, b.Quantity})
	}
	return update
}
