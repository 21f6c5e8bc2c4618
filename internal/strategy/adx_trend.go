package strategy

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/indicator"
	"tradecore/internal/ledger"
	"tradecore/internal/logger"
	"tradecore/internal/marketdata/agg"
	"tradecore/internal/model"
	"tradecore/internal/signal"
)

// ADXTrend enters long on closed candles when volatility covers the spread
// and a strong trend is confirmed (ADX above threshold, close above EMA).
// Stop-loss and take-profit are checked on every tick while long.
type ADXTrend struct {
	p      TrendParams
	pair   model.Pair
	agg    *agg.Aggregator
	ind    *indicator.Engine
	ledger *ledger.Ledger
	hooks  Hooks
	log    *zap.Logger

	last *indicator.Snapshot // nil until the first defined snapshot
}

// NewADXTrend creates a trend strategy instance. When p.Backfill is set and
// deps.Loader is available the indicator history is pre-warmed; a failed
// backfill is logged and the instance warms up from live candles instead.
func NewADXTrend(ctx context.Context, p TrendParams, deps Deps) (*ADXTrend, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pair, err := model.ParsePair(p.Symbol)
	if err != nil {
		return nil, err
	}
	a, err := agg.New(p.Interval)
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(pair, p.Balances, deps.Executor, deps.Logger, deps.ledgerOptions(p.Name)...)
	if err != nil {
		return nil, errors.Wrapf(err, "strategy %s", p.Name)
	}

	ind := indicator.NewEngine(indicator.Config{
		HistorySize: p.HistorySize,
		EMALength:   p.EMALength,
		ADXLength:   p.ADXLength,
		ATRLength:   p.ATRLength,
		WarmupExtra: p.WarmupExtra,
	})
	ind.OnCompute = deps.Hooks.OnCompute

	sink := deps.sink()
	a.OnClose = func(c model.Candle) { sink.CandleClosed(pair.Symbol, p.Interval, c) }

	s := &ADXTrend{
		p:      p,
		pair:   pair,
		agg:    a,
		ind:    ind,
		ledger: l,
		hooks:  deps.Hooks,
		log: logger.OrNop(deps.Logger).With(
			zap.String("strategy", p.Name),
			zap.String("symbol", pair.Symbol),
		),
	}

	if p.Backfill && deps.Loader != nil {
		s.backfill(ctx, deps.Loader)
	}
	return s, nil
}

func (s *ADXTrend) backfill(ctx context.Context, loader model.HistoryLoader) {
	limit := s.ind.Config().BackfillSize()
	candles, err := loader.LoadHistory(ctx, s.pair, s.p.Interval, limit)
	if err != nil {
		s.log.Warn("backfill failed, warming up from live candles", zap.Error(err))
		return
	}
	kept := s.ind.Seed(candles)
	s.log.Info("history backfilled",
		zap.Int("requested", limit),
		zap.Int("received", len(candles)),
		zap.Int("kept", kept),
		zap.Int("retained", s.ind.Len()),
	)
}

func (s *ADXTrend) Name() string   { return s.p.Name }
func (s *ADXTrend) Symbol() string { return s.pair.Symbol }

// Ledger exposes the instance ledger.
func (s *ADXTrend) Ledger() *ledger.Ledger { return s.ledger }

// Indicators exposes the instance indicator engine.
func (s *ADXTrend) Indicators() *indicator.Engine { return s.ind }

// LastSnapshot returns the most recent defined indicator snapshot.
func (s *ADXTrend) LastSnapshot() (indicator.Snapshot, bool) {
	if s.last == nil {
		return indicator.Snapshot{}, false
	}
	return *s.last, true
}

func (s *ADXTrend) OnPriceUpdate(ctx context.Context, tick model.Tick) {
	if pos := s.ledger.Position(); pos.IsLong() {
		if reason, hit := signal.CheckExit(tick.Price, pos); hit {
			s.log.Info("exit level reached",
				zap.String("reason", string(reason)),
				zap.Float64("price", tick.Price),
				zap.Float64("stop_loss", pos.StopLoss),
				zap.Float64("take_profit", pos.TakeProfit),
			)
			_ = s.ledger.Exit(ctx, tick.Price, string(reason))
		}
	}

	ts := tick.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	closed, ok := s.agg.Update(tick.Price, ts)
	if !ok {
		return
	}
	s.onCandle(ctx, closed)
}

func (s *ADXTrend) onCandle(ctx context.Context, c model.Candle) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(s.pair.Symbol, c.Start))
	log := s.log.With(logger.Fields(ctx)...)

	if err := s.ind.Append(c); err != nil {
		log.Warn("dropping out-of-order candle", zap.Error(err))
		return
	}
	snap, err := s.ind.Snapshot()
	if err != nil {
		log.Info("gathering candle history",
			zap.Int("have", s.ind.Len()),
			zap.Int("need", s.ind.Config().MinHistory()),
		)
		return
	}
	s.last = &snap

	log.Debug("indicators computed",
		zap.Float64("close", snap.Close),
		zap.Float64("ema", snap.EMA),
		zap.Float64("atr", snap.ATR),
		zap.Float64("adx", snap.ADX),
		zap.Float64("plus_di", snap.PlusDI),
		zap.Float64("minus_di", snap.MinusDI),
	)

	if s.ledger.Position().IsLong() {
		return
	}

	vol := signal.VolatilityGate(snap.ATR, snap.Close, signal.VolatilityParams{
		SLMult:       s.p.SLMult,
		SpreadPct:    s.p.SpreadPct,
		SafetyFactor: s.p.SafetyFactor,
	})
	if !vol.Pass {
		log.Info("volatility too low for entry",
			zap.Float64("required", vol.Required),
			zap.Float64("actual", vol.Actual),
		)
		s.hooks.gateReject(s.p.Name, vol.Gate)
		return
	}

	trend := signal.TrendGate(snap.ADX, snap.Close, snap.EMA, s.p.ADXThreshold)
	if !trend.Pass {
		log.Debug("no confirmed uptrend",
			zap.Float64("adx", snap.ADX),
			zap.Float64("close", snap.Close),
			zap.Float64("ema", snap.EMA),
		)
		s.hooks.gateReject(s.p.Name, trend.Gate)
		return
	}

	log.Info("strong uptrend confirmed, entering",
		zap.Float64("adx", snap.ADX),
		zap.Float64("close", snap.Close),
		zap.Float64("ema", snap.EMA),
	)
	_ = s.ledger.Enter(ctx, snap.Close, snap.ATR, ledger.RiskParams{
		Risk:   s.p.Risk,
		SLMult: s.p.SLMult,
		TPMult: s.p.TPMult,
	})
}

// Status implements Reporter.
func (s *ADXTrend) Status() Status {
	return Status{
		Name:        s.p.Name,
		Kind:        KindADXTrend,
		Symbol:      s.pair.Symbol,
		Position:    s.ledger.Position(),
		Balances:    s.ledger.Balances(),
		RealizedPnL: s.ledger.RealizedPnL(),
		Summary:     s.ledger.Summary(),
		Candles:     s.ind.Len(),
		Evicted:     s.ind.Evicted(),
	}
}
