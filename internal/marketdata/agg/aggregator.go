// Package agg folds a stream of ticks for one symbol into fixed-interval OHLC
// candles. Intervals are wall-clock based and start at the first tick; they are
// not aligned to exchange boundaries.
package agg

import (
	"time"

	"github.com/pkg/errors"

	"tradecore/internal/model"
)

// Aggregator builds candles for a single symbol. Not safe for concurrent use;
// the owning strategy instance serializes calls.
type Aggregator struct {
	interval time.Duration

	open   bool
	candle model.Candle

	// Optional hook, called with every finalized candle.
	OnClose func(c model.Candle)
}

// New creates an aggregator closing candles every interval.
func New(interval time.Duration) (*Aggregator, error) {
	if interval <= 0 {
		return nil, errors.Errorf("agg: interval must be positive, got %s", interval)
	}
	return &Aggregator{interval: interval}, nil
}

// Interval returns the candle interval.
func (a *Aggregator) Interval() time.Duration { return a.interval }

// Update incorporates a parsed price observed at now. When now is at least one
// interval past the forming candle's start, that candle (including this price)
// is returned and a new candle is opened seeded with the same price. At most one
// candle closes per call, however large the gap since the previous tick.
func (a *Aggregator) Update(price float64, now time.Time) (model.Candle, bool) {
	if !a.open {
		a.candle.Seed(price, now)
		a.open = true
		return model.Candle{}, false
	}

	a.candle.Apply(price)

	if now.Sub(a.candle.Start) < a.interval {
		return model.Candle{}, false
	}

	closed := a.candle
	a.candle.Seed(price, now)
	if a.OnClose != nil {
		a.OnClose(closed)
	}
	return closed, true
}

// Current returns the forming candle, if any.
func (a *Aggregator) Current() (model.Candle, bool) {
	return a.candle, a.open
}
