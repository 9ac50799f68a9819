// Package okx streams L2 order book snapshots from the OKX public websocket
// and forwards them into the raw book channel.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	appconfig "costflow/config"
	"costflow/internal/channel"
	"costflow/logger"
	"costflow/models"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const defaultPingInterval = 20 * time.Second

// Reader subscribes to OKX book channels for the configured instruments. The
// connection is re-established automatically until the context is cancelled;
// OKX pushes a full snapshot on subscribe and on every change for the plain
// "books" channel depth levels.
type Reader struct {
	config     *appconfig.Config
	channels   *channel.Channels
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
	symbols    []string
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewReader creates a new OKX book reader for the provided symbols.
func NewReader(cfg *appconfig.Config, ch *channel.Channels, symbols []string) *Reader {
	rl := cfg.Reader.RateLimit
	rps := rl.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := rl.BurstSize
	if burst <= 0 {
		burst = 1
	}

	return &Reader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		symbols:  symbols,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Start establishes the websocket connection and subscribes to book streams
// for all configured symbols.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("okx reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Okx.Orderbook.Snapshots
	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"operation": "start"})
	if !cfg.Enabled {
		log.Warn("okx orderbook snapshots are disabled")
		return fmt.Errorf("okx orderbook snapshots are disabled")
	}

	r.httpClient = &http.Client{
		Transport: userAgentTransport{agent: "curl/8.5.0", base: http.DefaultTransport},
		Timeout:   r.config.Reader.Timeout,
	}
	r.symbols = r.validateSymbols(r.symbols)

	log.WithFields(logger.Fields{"symbols": r.symbols, "url": cfg.URL}).Info("starting okx book reader")
	r.wg.Add(1)
	go r.stream(r.symbols, cfg)
	log.Info("okx book reader started successfully")
	return nil
}

// Stop terminates the websocket subscription and waits for goroutines to
// finish.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("okx_reader").Info("stopping okx book reader")
	r.wg.Wait()
	r.log.WithComponent("okx_reader").Info("okx book reader stopped")
}

// stream handles websocket lifecycle, reconnection and forwarding of events.
func (r *Reader) stream(symbols []string, cfg appconfig.OkxSnapshotConfig) {
	defer r.wg.Done()
	log := r.log.WithComponent("okx_reader").WithFields(logger.Fields{"symbols": symbols, "worker": "book_stream"})

	bookChannel := cfg.Channel
	if bookChannel == "" {
		bookChannel = "books"
	}
	pingInterval := defaultPingInterval
	if cfg.PingSec > 0 {
		pingInterval = time.Duration(cfg.PingSec) * time.Second
	}

	retry := r.config.Reader.Retry
	baseDelay := retry.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	multiplier := retry.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	delay := baseDelay
	attempts := 0

	for {
		if r.ctx.Err() != nil {
			return
		}
		// The limiter paces reconnect attempts so a flapping endpoint is not
		// hammered.
		if err := r.limiter.Wait(r.ctx); err != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, nil)
		if err != nil {
			attempts++
			if retry.MaxAttempts > 0 && attempts >= retry.MaxAttempts {
				log.WithError(err).WithFields(logger.Fields{"attempts": attempts}).Error("giving up on websocket connection")
				return
			}
			log.WithError(err).WithFields(logger.Fields{"retry_in": delay.String()}).Warn("failed to connect websocket, retrying")
			logger.IncrementReaderRetry()
			select {
			case <-time.After(delay):
				delay *= time.Duration(multiplier)
				if delay > maxDelay {
					delay = maxDelay
				}
				continue
			case <-r.ctx.Done():
				return
			}
		}
		delay = baseDelay
		attempts = 0

		args := make([]map[string]string, 0, len(symbols))
		for _, sym := range symbols {
			args = append(args, map[string]string{
				"channel": bookChannel,
				"instId":  sym,
			})
		}
		sub := map[string]interface{}{"op": "subscribe", "args": args}
		if err := conn.WriteJSON(sub); err != nil {
			log.WithError(err).Warn("failed to subscribe")
			conn.Close()
			continue
		}

		pingTicker := time.NewTicker(pingInterval)
		done := make(chan struct{})
		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-done:
					return
				case <-pingTicker.C:
					conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				log.WithError(err).Warn("websocket read error, reconnecting")
				logger.IncrementReaderRetry()
				break
			}
			r.processMessage(msg)
		}

		time.Sleep(time.Second)
	}
}

// processMessage decodes a websocket frame and forwards book events. It
// reports whether the frame carried book data.
func (r *Reader) processMessage(msg []byte) bool {
	if string(msg) == "pong" {
		return false
	}

	var base map[string]json.RawMessage
	if err := json.Unmarshal(msg, &base); err != nil {
		r.log.WithComponent("okx_reader").WithError(err).Debug("failed to decode message")
		return false
	}
	if _, ok := base["event"]; ok {
		// subscribe acks and errors
		var evt struct {
			Event string `json:"event"`
			Msg   string `json:"msg"`
		}
		json.Unmarshal(msg, &evt)
		if evt.Event == "error" {
			r.log.WithComponent("okx_reader").WithFields(logger.Fields{"msg": evt.Msg}).Warn("okx subscription error")
		}
		return false
	}

	var evt bookEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		return false
	}
	return r.handleEvent(&evt)
}

type bookEvent struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string `json:"action"`
	Data   []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

// handleEvent converts a websocket book event into a raw book message. OKX
// level entries carry extra fields beyond price and quantity; only the first
// two are kept.
func (r *Reader) handleEvent(evt *bookEvent) bool {
	if evt == nil || len(evt.Data) == 0 {
		return false
	}
	book := evt.Data[0]
	if len(book.Asks) == 0 && len(book.Bids) == 0 {
		return false
	}

	update := models.BookUpdate{
		Timestamp: book.Ts,
		Exchange:  "okx",
		Symbol:    evt.Arg.InstID,
		Asks:      convertLevels(book.Asks),
		Bids:      convertLevels(book.Bids),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		r.log.WithComponent("okx_reader").WithError(err).Warn("failed to marshal book event")
		return false
	}

	msg := models.RawBookMessage{
		Exchange:    "okx",
		Symbol:      evt.Arg.InstID,
		Market:      r.config.Source.Okx.Orderbook.Snapshots.MarketType,
		Data:        payload,
		Timestamp:   time.Now().UTC(),
		MessageType: "snapshot",
	}
	if r.channels.SendRaw(r.ctx, msg) {
		logger.IncrementSnapshotRead(len(payload))
		return true
	}
	if r.ctx.Err() == nil {
		r.log.WithComponent("okx_reader").Warn("raw book channel full, dropping message")
	}
	return false
}

func convertLevels(raw [][]string) [][2]string {
	out := make([][2]string, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		out = append(out, [2]string{lvl[0], lvl[1]})
	}
	return out
}

// validateSymbols filters the configured instruments against the OKX public
// instruments list. Failures keep the original list; the exchange rejects
// unknown instruments on subscribe anyway.
func (r *Reader) validateSymbols(symbols []string) []string {
	instType := "SPOT"
	if mt := r.config.Source.Okx.Orderbook.Snapshots.MarketType; mt == "futures" {
		instType = "SWAP"
	}
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet,
		"https://www.okx.com/api/v5/public/instruments?instType="+instType, nil)
	if err != nil {
		r.log.WithComponent("okx_reader").WithError(err).Warn("failed to build instruments request")
		return symbols
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.WithComponent("okx_reader").WithError(err).Warn("failed to fetch instruments list")
		return symbols
	}
	defer resp.Body.Close()
	var wrapper struct {
		Code string `json:"code"`
		Data []struct {
			InstID string `json:"instId"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		r.log.WithComponent("okx_reader").WithError(err).Warn("failed to decode instruments list")
		return symbols
	}
	valid := make(map[string]struct{}, len(wrapper.Data))
	for _, inst := range wrapper.Data {
		valid[inst.InstID] = struct{}{}
	}
	var filtered []string
	for _, s := range symbols {
		if _, ok := valid[s]; ok {
			filtered = append(filtered, s)
		} else {
			r.log.WithComponent("okx_reader").WithFields(logger.Fields{"symbol": s}).Warn("invalid instrument, skipping")
		}
	}
	return filtered
}
