package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the strategy core from concrete adapters
// (exchange REST APIs, SQLite, Redis, Prometheus).

// Executor places market orders. Implementations return the executed amount and
// price, which are authoritative for all balance updates.
type Executor interface {
	// Buy acquires qty units of asset with the quote currency.
	Buy(ctx context.Context, asset string, qty float64) (Execution, error)

	// Sell disposes of qty units of asset into the quote currency.
	Sell(ctx context.Context, asset string, qty float64) (Execution, error)
}

// HistoryLoader supplies prior candles to pre-warm indicator buffers.
type HistoryLoader interface {
	// LoadHistory returns up to limit candles ordered by Start ascending.
	LoadHistory(ctx context.Context, pair Pair, interval time.Duration, limit int) ([]Candle, error)
}

// Sink receives domain events for journaling, publishing and metrics.
// Implementations must not block the caller for long and must not panic.
type Sink interface {
	CandleClosed(symbol string, interval time.Duration, c Candle)
	Filled(f Fill)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) CandleClosed(string, time.Duration, Candle) {}
func (NopSink) Filled(Fill)                                {}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) CandleClosed(symbol string, interval time.Duration, c Candle) {
	for _, s := range m {
		s.CandleClosed(symbol, interval, c)
	}
}

func (m MultiSink) Filled(f Fill) {
	for _, s := range m {
		s.Filled(f)
	}
}
