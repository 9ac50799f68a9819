package models

import (
	"time"
)

// RawBookMessage represents a raw order book payload received from an
// exchange feed before decoding. Data carries the exchange specific JSON.
type RawBookMessage struct {
	Exchange    string
	Symbol      string
	Market      string
	Data        []byte
	Timestamp   time.Time
	MessageType string
}

// BookUpdate is the ingestion-facing order book snapshot. Price and quantity
// values arrive as decimal strings exactly as the exchanges send them; they
// are parsed to float64 when the snapshot is applied to the book.
type BookUpdate struct {
	Timestamp string      `json:"timestamp"`
	Exchange  string      `json:"exchange"`
	Symbol    string      `json:"symbol"`
	Asks      [][2]string `json:"asks"`
	Bids      [][2]string `json:"bids"`
}

// BookLevel represents a single parsed price level in the orderbook.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}
