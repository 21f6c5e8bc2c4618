// Package replay turns stored candles back into a tick stream for
// backtesting. Each candle becomes four synthetic ticks spread across its
// interval, so the strategy under test rebuilds the same bars and sees
// intra-bar highs and lows for stop-loss/take-profit checks.
package replay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// maxGap caps the scaled sleep between ticks in paced mode.
const maxGap = 5 * time.Second

// CandleSource reads a stored candle series in start order.
type CandleSource interface {
	ReadCandles(ctx context.Context, symbol string, interval time.Duration, after time.Time) ([]model.Candle, error)
}

// Replayer reads a candle series and replays it as ticks at a configurable
// speed multiplier.
type Replayer struct {
	src CandleSource
	log *zap.Logger
}

// New creates a Replayer backed by a candle source (usually the SQLite reader).
func New(src CandleSource, log *zap.Logger) *Replayer {
	return &Replayer{src: src, log: logger.OrNop(log)}
}

// Run replays the symbol's candles after `after` into out.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// Returns the number of candles replayed.
func (r *Replayer) Run(ctx context.Context, symbol string, interval time.Duration, after time.Time, speed float64, out chan<- model.RawTick) (int, error) {
	candles, err := r.src.ReadCandles(ctx, symbol, interval, after)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		r.log.Info("no candles to replay", zap.String("symbol", symbol), zap.Duration("interval", interval))
		return 0, nil
	}
	r.log.Info("replaying candles",
		zap.String("symbol", symbol),
		zap.Int("candles", len(candles)),
		zap.Float64("speed", speed),
	)

	var prevTS time.Time
	for i, c := range candles {
		for _, t := range Ticks(symbol, c, interval) {
			// Simulate time gaps between ticks
			if speed > 0 && !prevTS.IsZero() {
				if gap := t.TS.Sub(prevTS); gap > 0 {
					scaled := time.Duration(float64(gap) / speed)
					if scaled > maxGap {
						scaled = maxGap
					}
					select {
					case <-ctx.Done():
						return i, ctx.Err()
					case <-time.After(scaled):
					}
				}
			}
			prevTS = t.TS

			select {
			case out <- t:
			case <-ctx.Done():
				r.log.Info("replay cancelled", zap.Int("candles", i))
				return i, ctx.Err()
			}
		}
	}

	r.log.Info("replay completed", zap.String("symbol", symbol), zap.Int("candles", len(candles)))
	return len(candles), nil
}

// Ticks expands a candle into open, two extremes and close at even offsets
// inside its interval. A rising bar visits the low first, a falling bar the
// high first.
func Ticks(symbol string, c model.Candle, interval time.Duration) []model.RawTick {
	first, second := c.Low, c.High
	if c.Close < c.Open {
		first, second = c.High, c.Low
	}
	step := interval / 4
	prices := [4]float64{c.Open, first, second, c.Close}
	ticks := make([]model.RawTick, len(prices))
	for i, p := range prices {
		ticks[i] = model.RawTick{
			Symbol: symbol,
			Price:  p,
			TS:     c.Start.Add(time.Duration(i) * step),
		}
	}
	return ticks
}
