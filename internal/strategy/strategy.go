// Package strategy runs trading policies over a live tick stream.
//
// A Strategy consumes parsed ticks for one symbol and drives its own ledger.
// The Engine parses raw feed updates, routes them by symbol and serializes
// calls into each instance.
package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/ledger"
	"tradecore/internal/model"
)

// Strategy is the capability every trading policy implements.
type Strategy interface {
	// Name returns the unique instance name.
	Name() string

	// Symbol returns the normalized symbol the instance trades.
	Symbol() string

	// OnPriceUpdate is called for each parsed tick of Symbol. Calls for one
	// instance never overlap.
	OnPriceUpdate(ctx context.Context, tick model.Tick)
}

// Reporter is implemented by strategies that expose their state for status
// reports and backtest summaries.
type Reporter interface {
	Status() Status
}

// Status is a point-in-time view of a strategy instance.
type Status struct {
	Name        string             `json:"name"`
	Kind        string             `json:"kind"`
	Symbol      string             `json:"symbol"`
	Position    model.Position     `json:"position"`
	Balances    map[string]float64 `json:"balances"`
	RealizedPnL float64            `json:"realized_pnl"`
	Summary     ledger.Summary     `json:"summary"`
	Candles     int                `json:"candles,omitempty"`
	Evicted     uint64             `json:"candles_evicted,omitempty"`
}

// Deps are the collaborators shared by strategy constructors.
type Deps struct {
	Executor model.Executor      // required
	Loader   model.HistoryLoader // optional backfill source
	Sink     model.Sink          // optional; candles and fills
	Logger   *zap.Logger
	Hooks    Hooks
	Clock    func() time.Time // optional; used for fill timestamps
}

func (d Deps) sink() model.Sink {
	if d.Sink == nil {
		return model.NopSink{}
	}
	return d.Sink
}

func (d Deps) ledgerOptions(name string) []ledger.Option {
	opts := []ledger.Option{ledger.WithSink(d.sink()), ledger.WithStrategy(name)}
	if d.Clock != nil {
		opts = append(opts, ledger.WithClock(d.Clock))
	}
	return opts
}

// Hooks are optional metric callbacks. Nil fields are skipped.
type Hooks struct {
	OnTick       func(symbol string)
	OnParseError func(symbol string)
	OnDrop       func(symbol string)
	OnGateReject func(strategy, gate string)
	OnCompute    func(d time.Duration)
}

func (h Hooks) tick(symbol string) {
	if h.OnTick != nil {
		h.OnTick(symbol)
	}
}

func (h Hooks) parseError(symbol string) {
	if h.OnParseError != nil {
		h.OnParseError(symbol)
	}
}

func (h Hooks) gateReject(strategy, gate string) {
	if h.OnGateReject != nil {
		h.OnGateReject(strategy, gate)
	}
}
