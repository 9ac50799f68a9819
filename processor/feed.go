// Package processor drains raw book messages from the channel hub and
// applies them to the live order book.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"costflow/book"
	appconfig "costflow/config"
	"costflow/logger"
	"costflow/models"
)

// Feed decodes raw snapshot payloads and applies them to the book. Multiple
// workers may apply concurrently; the book replaces snapshots wholesale, so
// the last writer wins.
type Feed struct {
	config  *appconfig.Config
	rawChan <-chan models.RawBookMessage
	book    *book.Book
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	messagesProcessed int64
	errorsCount       int64
}

// NewFeed creates a new feed processor over the shared book.
func NewFeed(cfg *appconfig.Config, rawChan <-chan models.RawBookMessage, b *book.Book) *Feed {
	return &Feed{
		config:  cfg,
		rawChan: rawChan,
		book:    b,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Start begins processing messages from the raw book channel.
func (p *Feed) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("feed processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("feed_processor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting feed processor")

	workers := p.config.Processor.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.metricsReporter(ctx)

	log.Info("feed processor started successfully")
	return nil
}

// Stop signals all workers to stop and waits for completion.
func (p *Feed) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("feed_processor").Info("stopping feed processor")
	p.wg.Wait()
	p.log.WithComponent("feed_processor").Info("feed processor stopped")
}

func (p *Feed) worker(id int) {
	defer p.wg.Done()

	log := p.log.WithComponent("feed_processor").WithFields(logger.Fields{"worker_id": id})

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.rawChan:
			if !ok {
				return
			}
			p.processMessage(log, msg)
		}
	}
}

// processMessage decodes one raw payload and applies it to the book. Decode
// failures are logged and skipped; an empty snapshot is still applied since
// an empty side is a legal book state.
func (p *Feed) processMessage(log *logger.Entry, msg models.RawBookMessage) {
	var update models.BookUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		p.mu.Lock()
		p.errorsCount++
		p.mu.Unlock()
		log.WithError(err).WithFields(logger.Fields{
			"exchange": msg.Exchange,
			"symbol":   msg.Symbol,
		}).Warn("failed to decode book snapshot, skipping")
		return
	}
	if update.Exchange == "" {
		update.Exchange = msg.Exchange
	}
	if update.Symbol == "" {
		update.Symbol = msg.Symbol
	}

	elapsed := p.book.Update(update)

	p.mu.Lock()
	p.messagesProcessed++
	p.mu.Unlock()

	log.WithFields(logger.Fields{
		"exchange":    update.Exchange,
		"symbol":      update.Symbol,
		"asks":        len(update.Asks),
		"bids":        len(update.Bids),
		"duration_us": elapsed.Microseconds(),
	}).Debug("applied book snapshot")
}

func (p *Feed) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reportMetrics()
		}
	}
}

func (p *Feed) reportMetrics() {
	p.mu.RLock()
	messagesProcessed := p.messagesProcessed
	errorsCount := p.errorsCount
	p.mu.RUnlock()

	errorRate := float64(0)
	if messagesProcessed+errorsCount > 0 {
		errorRate = float64(errorsCount) / float64(messagesProcessed+errorsCount)
	}

	p.log.LogMetric("feed_processor", "messages_processed", messagesProcessed, "counter", logger.Fields{})
	p.log.LogMetric("feed_processor", "errors_count", errorsCount, "counter", logger.Fields{})
	p.log.LogMetric("feed_processor", "error_rate", errorRate, "gauge", logger.Fields{})

	p.log.WithComponent("feed_processor").WithFields(logger.Fields{
		"messages_processed": messagesProcessed,
		"errors_count":       errorsCount,
		"error_rate":         errorRate,
		"raw_queue_len":      len(p.rawChan),
		"raw_queue_cap":      cap(p.rawChan),
		"avg_book_update_us": p.book.AverageProcessingTime().Microseconds(),
	}).Info("feed processor metrics")
}
