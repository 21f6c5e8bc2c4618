package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"tradecore/internal/model"
)

type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) Buy(ctx context.Context, asset string, qty float64) (model.Execution, error) {
	args := m.Called(ctx, asset, qty)
	return args.Get(0).(model.Execution), args.Error(1)
}

func (m *mockExecutor) Sell(ctx context.Context, asset string, qty float64) (model.Execution, error) {
	args := m.Called(ctx, asset, qty)
	return args.Get(0).(model.Execution), args.Error(1)
}

type loaderFunc func(ctx context.Context, pair model.Pair, interval time.Duration, limit int) ([]model.Candle, error)

func (f loaderFunc) LoadHistory(ctx context.Context, pair model.Pair, interval time.Duration, limit int) ([]model.Candle, error) {
	return f(ctx, pair, interval, limit)
}

// recordingStrategy records every tick it receives.
type recordingStrategy struct {
	name, symbol string
	mu           sync.Mutex
	ticks        []model.Tick
}

func (r *recordingStrategy) Name() string   { return r.name }
func (r *recordingStrategy) Symbol() string { return r.symbol }
func (r *recordingStrategy) OnPriceUpdate(_ context.Context, t model.Tick) {
	r.mu.Lock()
	r.ticks = append(r.ticks, t)
	r.mu.Unlock()
}

func (r *recordingStrategy) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

// blockingStrategy holds every tick until release is closed.
type blockingStrategy struct {
	symbol  string
	release chan struct{}
}

func (b *blockingStrategy) Name() string                              { return "blocking" }
func (b *blockingStrategy) Symbol() string                            { return b.symbol }
func (b *blockingStrategy) OnPriceUpdate(context.Context, model.Tick) { <-b.release }

type markRecorder struct {
	mu    sync.Mutex
	marks map[string]float64
}

func (m *markRecorder) MarkPrice(symbol string, price float64) {
	m.mu.Lock()
	if m.marks == nil {
		m.marks = map[string]float64{}
	}
	m.marks[symbol] = price
	m.mu.Unlock()
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func tick(sym string, price float64, at time.Duration) model.Tick {
	return model.Tick{Symbol: sym, Price: price, TS: t0.Add(at)}
}

// smallTrendParams keeps warm-up short: 7 candles of one minute.
func smallTrendParams() TrendParams {
	p := DefaultTrendParams()
	p.Symbol = "btc-usd"
	p.Interval = time.Minute
	p.HistorySize = 20
	p.EMALength = 5
	p.ADXLength = 3
	p.ATRLength = 3
	p.WarmupExtra = 2
	p.Backfill = false
	p.Balances = map[string]float64{"USD": 10000}
	return p
}
