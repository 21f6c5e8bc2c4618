// Package ledger tracks the long-only position and virtual wallet of one
// strategy instance and turns entry/exit decisions into executor calls.
//
// A Ledger is not safe for concurrent use; the strategy engine serializes
// access per instance.
package ledger

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// RiskParams sizes ADX-trend entries and places their protective levels.
type RiskParams struct {
	Risk   float64 // fraction of the quote balance committed per entry
	SLMult float64 // stop-loss distance in ATRs
	TPMult float64 // take-profit distance in ATRs
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithSink routes fills to s.
func WithSink(s model.Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithStrategy tags fills and log lines with the owning strategy name.
func WithStrategy(name string) Option {
	return func(l *Ledger) { l.strategy = name }
}

// WithClock overrides time.Now for fill and position timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger owns a Position and a Wallet for a single pair.
type Ledger struct {
	pair     model.Pair
	wallet   *Wallet
	pos      model.Position
	exec     model.Executor
	log      *zap.Logger
	sink     model.Sink
	strategy string
	now      func() time.Time

	entryCost float64 // quote debited for the open position
	pnl       pnlTracker
}

// New creates a ledger for pair with the given starting balances.
func New(pair model.Pair, balances map[string]float64, exec model.Executor, log *zap.Logger, opts ...Option) (*Ledger, error) {
	if exec == nil {
		return nil, errors.New("ledger: executor is required")
	}
	w, err := NewWallet(balances)
	if err != nil {
		return nil, errors.Wrap(err, "ledger: wallet")
	}
	l := &Ledger{
		pair:   pair,
		wallet: w,
		exec:   exec,
		sink:   model.NopSink{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = logger.OrNop(log).With(
		zap.String("symbol", pair.Symbol),
		zap.String("strategy", l.strategy),
	)
	return l, nil
}

// Pair returns the traded pair.
func (l *Ledger) Pair() model.Pair { return l.pair }

// Position returns a copy of the current position.
func (l *Ledger) Position() model.Position { return l.pos }

// Balances returns a copy of the wallet.
func (l *Ledger) Balances() map[string]float64 { return l.wallet.Snapshot() }

// RealizedPnL returns the sum of closed round-trip results in quote currency.
func (l *Ledger) RealizedPnL() float64 { return l.pnl.realized }

// Trades returns a copy of closed round trips.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, len(l.pnl.trades))
	copy(out, l.pnl.trades)
	return out
}

// Summary returns realized performance statistics.
func (l *Ledger) Summary() Summary { return l.pnl.summary() }

// Enter opens a risk-sized long position. Quantity is quote*Risk/signalPrice.
// Repeated calls while Long are the caller's responsibility.
func (l *Ledger) Enter(ctx context.Context, signalPrice, atr float64, p RiskParams) error {
	log := l.log.With(logger.Fields(ctx)...)
	if !(signalPrice > 0) || math.IsInf(signalPrice, 0) {
		return errors.Errorf("ledger: invalid signal price %f", signalPrice)
	}

	quote := l.wallet.Balance(l.pair.Quote)
	qty := quote * p.Risk / signalPrice
	if !(qty > 0) {
		log.Warn("no quote balance to size entry", zap.Float64("quote", quote))
		return errors.Wrapf(model.ErrInsufficientBalance, "%s balance %f", l.pair.Quote, quote)
	}
	if cost := qty * signalPrice; cost > quote+dust {
		log.Warn("insufficient budget for entry", zap.Float64("cost", cost), zap.Float64("quote", quote))
		return errors.Wrapf(model.ErrInsufficientBalance, "need %f %s, have %f", cost, l.pair.Quote, quote)
	}

	ex, err := l.exec.Buy(ctx, l.pair.Base, qty)
	if err != nil {
		log.Error("buy failed", zap.Float64("qty", qty), zap.Error(err))
		return errors.Wrapf(model.ErrExecution, "buy %f %s: %v", qty, l.pair.Base, err)
	}
	if err := validExecution(ex); err != nil {
		log.Error("buy returned unusable execution", zap.Error(err))
		return err
	}

	debit, amount := l.buyFill(log, ex)
	if err := l.wallet.Apply(map[string]float64{
		l.pair.Quote: -debit,
		l.pair.Base:  amount,
	}); err != nil {
		return err
	}

	// Stop-loss is anchored to the signal price, take-profit to the executed price.
	sl := signalPrice - atr*p.SLMult
	tp := ex.Price + atr*p.TPMult
	if sl >= tp {
		log.Warn("stop-loss not below take-profit", zap.Float64("stop_loss", sl), zap.Float64("take_profit", tp))
	}

	l.pos = model.Position{
		State:      model.Long,
		Entry:      ex.Price,
		Qty:        amount,
		StopLoss:   sl,
		TakeProfit: tp,
		OpenedAt:   l.now(),
	}
	l.entryCost = debit

	log.Info("entered long",
		zap.Float64("signal_price", signalPrice),
		zap.Float64("price", ex.Price),
		zap.Float64("amount", amount),
		zap.Float64("stop_loss", sl),
		zap.Float64("take_profit", tp),
		zap.Float64("atr", atr),
	)
	l.emit(model.SideBuy, qty, ex, signalPrice, "entry")
	return nil
}

// Exit sells the whole base balance. With nothing to sell the position is
// reset to Flat without calling the executor.
func (l *Ledger) Exit(ctx context.Context, price float64, reason string) error {
	log := l.log.With(logger.Fields(ctx)...)
	base := l.wallet.Balance(l.pair.Base)
	if base <= 0 {
		log.Warn("no virtual asset found to sell", zap.String("reason", reason))
		l.flatten()
		return nil
	}

	ex, err := l.exec.Sell(ctx, l.pair.Base, base)
	if err != nil {
		log.Error("sell failed", zap.Float64("qty", base), zap.String("reason", reason), zap.Error(err))
		return errors.Wrapf(model.ErrExecution, "sell %f %s: %v", base, l.pair.Base, err)
	}
	if err := validExecution(ex); err != nil {
		log.Error("sell returned unusable execution", zap.Error(err))
		return err
	}

	amount := l.sellAmount(log, ex, base)
	proceeds := amount * ex.Price
	if err := l.wallet.Apply(map[string]float64{l.pair.Quote: proceeds}); err != nil {
		return err
	}
	_ = l.wallet.Set(l.pair.Base, 0)

	t := l.closeTrade(ex, amount, proceeds, reason)
	log.Info("exited long",
		zap.String("reason", reason),
		zap.Float64("trigger_price", price),
		zap.Float64("price", ex.Price),
		zap.Float64("amount", amount),
		zap.Float64("pnl", t.PnL),
		zap.Float64("realized_pnl", l.pnl.realized),
	)
	l.emit(model.SideSell, base, ex, price, reason)
	return nil
}

// Buy acquires a fixed quantity if the quote balance covers qty*price.
func (l *Ledger) Buy(ctx context.Context, qty, price float64, reason string) error {
	log := l.log.With(logger.Fields(ctx)...)
	if !(qty > 0) {
		return errors.Errorf("ledger: invalid quantity %f", qty)
	}
	quote := l.wallet.Balance(l.pair.Quote)
	if cost := qty * price; quote < cost {
		log.Warn("insufficient budget for BUY", zap.Float64("cost", cost), zap.Float64("quote", quote))
		return errors.Wrapf(model.ErrInsufficientBalance, "need %f %s, have %f", cost, l.pair.Quote, quote)
	}

	ex, err := l.exec.Buy(ctx, l.pair.Base, qty)
	if err != nil {
		log.Error("buy failed", zap.Float64("qty", qty), zap.Error(err))
		return errors.Wrapf(model.ErrExecution, "buy %f %s: %v", qty, l.pair.Base, err)
	}
	if err := validExecution(ex); err != nil {
		log.Error("buy returned unusable execution", zap.Error(err))
		return err
	}

	debit, amount := l.buyFill(log, ex)
	if err := l.wallet.Apply(map[string]float64{
		l.pair.Quote: -debit,
		l.pair.Base:  amount,
	}); err != nil {
		return err
	}
	l.pos = model.Position{State: model.Long, Entry: ex.Price, Qty: amount, OpenedAt: l.now()}
	l.entryCost = debit

	log.Info("bought", zap.Float64("price", ex.Price), zap.Float64("amount", amount), zap.String("reason", reason))
	l.emit(model.SideBuy, qty, ex, price, reason)
	return nil
}

// Sell disposes of a fixed quantity if the base balance covers it. The
// position returns to Flat on success.
func (l *Ledger) Sell(ctx context.Context, qty, price float64, reason string) error {
	log := l.log.With(logger.Fields(ctx)...)
	if !(qty > 0) {
		return errors.Errorf("ledger: invalid quantity %f", qty)
	}
	base := l.wallet.Balance(l.pair.Base)
	if base < qty {
		log.Warn("insufficient asset for SELL", zap.Float64("qty", qty), zap.Float64("base", base))
		return errors.Wrapf(model.ErrInsufficientBalance, "need %f %s, have %f", qty, l.pair.Base, base)
	}

	ex, err := l.exec.Sell(ctx, l.pair.Base, qty)
	if err != nil {
		log.Error("sell failed", zap.Float64("qty", qty), zap.Error(err))
		return errors.Wrapf(model.ErrExecution, "sell %f %s: %v", qty, l.pair.Base, err)
	}
	if err := validExecution(ex); err != nil {
		log.Error("sell returned unusable execution", zap.Error(err))
		return err
	}

	amount := l.sellAmount(log, ex, base)
	proceeds := amount * ex.Price
	if err := l.wallet.Apply(map[string]float64{
		l.pair.Quote: proceeds,
		l.pair.Base:  -amount,
	}); err != nil {
		return err
	}

	t := l.closeTrade(ex, amount, proceeds, reason)
	log.Info("sold",
		zap.Float64("price", ex.Price),
		zap.Float64("amount", amount),
		zap.String("reason", reason),
		zap.Float64("pnl", t.PnL),
	)
	l.emit(model.SideSell, qty, ex, price, reason)
	return nil
}

// buyFill returns the quote to debit and the base to credit for a buy
// execution. When the executed cost exceeds the quote balance the debit is
// capped at the balance and the credit is what that debit buys at ex.Price.
func (l *Ledger) buyFill(log *zap.Logger, ex model.Execution) (debit, amount float64) {
	cost := ex.Cost()
	quote := l.wallet.Balance(l.pair.Quote)
	if cost <= quote {
		return cost, ex.Amount
	}
	log.Warn("executed cost exceeds quote balance, capping fill",
		zap.Float64("cost", cost),
		zap.Float64("quote", quote),
		zap.Float64("amount", ex.Amount),
		zap.Float64("credited", quote/ex.Price),
	)
	return quote, quote / ex.Price
}

// sellAmount caps a sell execution at the base actually held.
func (l *Ledger) sellAmount(log *zap.Logger, ex model.Execution, base float64) float64 {
	if ex.Amount <= base {
		return ex.Amount
	}
	log.Warn("executor sold more than held", zap.Float64("amount", ex.Amount), zap.Float64("base", base))
	return base
}

func (l *Ledger) closeTrade(ex model.Execution, amount, proceeds float64, reason string) Trade {
	t := Trade{
		Entry:    l.pos.Entry,
		Exit:     ex.Price,
		Qty:      amount,
		Cost:     l.entryCost,
		Proceeds: proceeds,
		PnL:      proceeds - l.entryCost,
		Reason:   reason,
		OpenedAt: l.pos.OpenedAt,
		ClosedAt: l.now(),
	}
	l.pnl.record(t)
	l.flatten()
	return t
}

func (l *Ledger) flatten() {
	l.pos = model.Position{}
	l.entryCost = 0
}

func (l *Ledger) emit(side model.Side, requested float64, ex model.Execution, signal float64, reason string) {
	l.sink.Filled(model.Fill{
		OrderID:   uuid.NewString(),
		Strategy:  l.strategy,
		Symbol:    l.pair.Symbol,
		Side:      side,
		Requested: requested,
		Amount:    ex.Amount,
		Price:     ex.Price,
		Signal:    signal,
		Reason:    reason,
		TS:        l.now(),
	})
}

func validExecution(ex model.Execution) error {
	if !(ex.Amount > 0) || !(ex.Price > 0) || math.IsInf(ex.Cost(), 0) {
		return errors.Wrapf(model.ErrExecution, "unusable execution amount=%f price=%f", ex.Amount, ex.Price)
	}
	return nil
}
