package strategy

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/indicator"
	"tradecore/internal/ledger"
	"tradecore/internal/logger"
	"tradecore/internal/model"
	"tradecore/internal/signal"
)

// SMACrossover trades a fixed quantity on price/SMA crossovers.
//
// Buy: price crosses above its SMA while flat.
// Sell: price crosses below its SMA while long.
//
// Orders are capped by the wallet: a buy needs quote >= qty*price, a sell
// needs base >= qty.
type SMACrossover struct {
	p      CrossoverParams
	pair   model.Pair
	sma    *indicator.SMA
	cross  signal.Crossover
	ledger *ledger.Ledger
	log    *zap.Logger
}

// NewSMACrossover creates a crossover strategy instance.
func NewSMACrossover(p CrossoverParams, deps Deps) (*SMACrossover, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	pair, err := model.ParsePair(p.Symbol)
	if err != nil {
		return nil, err
	}
	log := logger.OrNop(deps.Logger).With(
		zap.String("strategy", p.Name),
		zap.String("symbol", pair.Symbol),
	)
	l, err := ledger.New(pair, p.Balances, deps.Executor, deps.Logger, deps.ledgerOptions(p.Name)...)
	if err != nil {
		return nil, errors.Wrapf(err, "strategy %s", p.Name)
	}
	return &SMACrossover{
		p:      p,
		pair:   pair,
		sma:    indicator.NewSMA(p.WindowSize),
		ledger: l,
		log:    log,
	}, nil
}

func (s *SMACrossover) Name() string   { return s.p.Name }
func (s *SMACrossover) Symbol() string { return s.pair.Symbol }

// Ledger exposes the instance ledger.
func (s *SMACrossover) Ledger() *ledger.Ledger { return s.ledger }

func (s *SMACrossover) OnPriceUpdate(ctx context.Context, tick model.Tick) {
	s.sma.Update(tick.Price)
	avg, ok := s.sma.Value()
	if !ok {
		return
	}

	ev := s.cross.Observe(tick.Price, avg)
	long := s.ledger.Position().IsLong()

	switch {
	case ev == signal.CrossUp && !long:
		s.log.Info("price crossed above SMA", zap.Float64("price", tick.Price), zap.Float64("sma", avg))
		_ = s.ledger.Buy(ctx, s.p.Quantity, tick.Price, "price crossed above SMA")
	case ev == signal.CrossDown && long:
		s.log.Info("price crossed below SMA", zap.Float64("price", tick.Price), zap.Float64("sma", avg))
		s.sell(ctx, tick.Price)
	}
}

// sell disposes of the fixed quantity, or of what is held when a partial buy
// fill left less than that. With nothing held the position is just closed.
func (s *SMACrossover) sell(ctx context.Context, price float64) {
	reason := string(signal.CrossDownExit)
	held := s.ledger.Balances()[s.pair.Base]
	if held <= 0 {
		_ = s.ledger.Exit(ctx, price, reason)
		return
	}
	qty := s.p.Quantity
	if held < qty {
		qty = held
	}
	_ = s.ledger.Sell(ctx, qty, price, reason)
}

// Status implements Reporter.
func (s *SMACrossover) Status() Status {
	return Status{
		Name:        s.p.Name,
		Kind:        KindSMACrossover,
		Symbol:      s.pair.Symbol,
		Position:    s.ledger.Position(),
		Balances:    s.ledger.Balances(),
		RealizedPnL: s.ledger.RealizedPnL(),
		Summary:     s.ledger.Summary(),
	}
}
