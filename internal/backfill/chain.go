package backfill

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// Chain tries loaders in order and returns the first result that satisfies
// the requested limit. When none does, the longest partial result wins, so
// a sparse local store still falls through to a remote source.
type Chain struct {
	loaders []model.HistoryLoader
	log     *zap.Logger
}

var _ model.HistoryLoader = (*Chain)(nil)

// NewChain builds a fallback chain. Nil loaders are skipped.
func NewChain(log *zap.Logger, loaders ...model.HistoryLoader) *Chain {
	c := &Chain{log: logger.OrNop(log)}
	for _, l := range loaders {
		if l != nil {
			c.loaders = append(c.loaders, l)
		}
	}
	return c
}

// LoadHistory implements model.HistoryLoader.
func (c *Chain) LoadHistory(ctx context.Context, pair model.Pair, interval time.Duration, limit int) ([]model.Candle, error) {
	var (
		best    []model.Candle
		lastErr error
	)
	for i, l := range c.loaders {
		candles, err := l.LoadHistory(ctx, pair, interval, limit)
		if err != nil {
			c.log.Warn("history loader failed",
				zap.String("symbol", pair.Symbol),
				zap.Int("loader", i),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if len(candles) >= limit {
			return candles, nil
		}
		if len(candles) > len(best) {
			best = candles
		}
	}
	if len(best) > 0 {
		return best, nil
	}
	if lastErr != nil {
		return nil, errors.Wrap(lastErr, "all history loaders failed")
	}
	return nil, nil
}
