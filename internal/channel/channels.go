// Package channel owns the buffered pipe between the exchange readers and
// the book feed processor.
package channel

import (
	"context"
	"sync"
	"time"

	"costflow/logger"
	"costflow/models"
)

const metricsReportInterval = 30 * time.Second

type ChannelStats struct {
	RawSent    int64
	RawDropped int64
}

type Channels struct {
	Raw chan models.RawBookMessage

	stats      ChannelStats
	statsMutex sync.RWMutex

	metricsReportTicker *time.Ticker
	log                 *logger.Log
}

func NewChannels(rawBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw: make(chan models.RawBookMessage, rawBufferSize),
		log: log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size": rawBufferSize,
	}).Info("book snapshot channel initialized")

	return c
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

// SendRaw forwards a raw snapshot without blocking the reader. A full buffer
// drops the message; book updates are full replaces, so the next snapshot
// supersedes a dropped one.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawBookMessage) bool {
	select {
	case c.Raw <- msg:
		c.IncrementRawSent()
		logger.RecordChannelMessage("raw_books", len(msg.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementRawDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

func (c *Channels) StartMetricsReporting(ctx context.Context) {
	c.metricsReportTicker = time.NewTicker(metricsReportInterval)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.metricsReportTicker.Stop()
				return
			case <-c.metricsReportTicker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	c.statsMutex.RLock()
	stats := c.stats
	c.statsMutex.RUnlock()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"raw_messages_sent":    stats.RawSent,
		"raw_messages_dropped": stats.RawDropped,
		"raw_channel_len":      len(c.Raw),
		"raw_channel_cap":      cap(c.Raw),
	}).Info("channel statistics")
}

func (c *Channels) Close() {
	if c.metricsReportTicker != nil {
		c.metricsReportTicker.Stop()
	}
	close(c.Raw)
	c.log.WithComponent("channels").Info("book snapshot channel closed")
}
