package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

// ────────────────────────────────────────────────────────────
// SMACrossover
// ────────────────────────────────────────────────────────────

func newCrossover(t *testing.T, exec *mockExecutor) *SMACrossover {
	t.Helper()
	p := DefaultCrossoverParams()
	p.Symbol = "BTC-USD"
	p.WindowSize = 3
	p.Balances = map[string]float64{"USD": 10000}
	s, err := NewSMACrossover(p, Deps{Executor: exec})
	require.NoError(t, err)
	return s
}

func TestSMACrossover_BuyThenSell(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Buy", mock.Anything, "BTC", 0.1).Return(model.Execution{Amount: 0.1, Price: 110}, nil).Once()
	exec.On("Sell", mock.Anything, "BTC", 0.1).Return(model.Execution{Amount: 0.1, Price: 90}, nil).Once()

	s := newCrossover(t, exec)
	assert.Equal(t, "btc-usd", s.Symbol())

	ctx := context.Background()
	// SMA defined at the third tick; 110 crosses up, 90 crosses down.
	for i, p := range []float64{100, 100, 100, 110, 120, 90} {
		s.OnPriceUpdate(ctx, tick("btc-usd", p, time.Duration(i)*time.Second))
		if p == 110 {
			assert.True(t, s.Ledger().Position().IsLong(), "long after cross up")
		}
	}

	assert.False(t, s.Ledger().Position().IsLong())
	assert.InDelta(t, -2, s.Ledger().RealizedPnL(), 1e-9)
	exec.AssertExpectations(t)

	st := s.Status()
	assert.Equal(t, KindSMACrossover, st.Kind)
	assert.Equal(t, 1, st.Summary.TotalTrades)
}

func TestSMACrossover_NoDoubleEntry(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Buy", mock.Anything, "BTC", 0.1).Return(model.Execution{Amount: 0.1, Price: 110}, nil).Once()
	exec.On("Sell", mock.Anything, "BTC", 0.1).Return(model.Execution{}, errors.New("rejected"))

	s := newCrossover(t, exec)
	ctx := context.Background()
	// Cross up, cross down (sell fails, still long), cross up again.
	for i, p := range []float64{100, 100, 100, 110, 120, 90, 80, 130} {
		s.OnPriceUpdate(ctx, tick("btc-usd", p, time.Duration(i)*time.Second))
	}

	assert.True(t, s.Ledger().Position().IsLong())
	exec.AssertNumberOfCalls(t, "Buy", 1)
}

func TestSMACrossover_PartialBuyFillStillExits(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Buy", mock.Anything, "BTC", 0.1).Return(model.Execution{Amount: 0.0999, Price: 110}, nil).Twice()
	exec.On("Sell", mock.Anything, "BTC", 0.0999).Return(model.Execution{Amount: 0.0999, Price: 90}, nil).Once()

	s := newCrossover(t, exec)
	ctx := context.Background()
	// Cross up at 110, cross down at 90.
	for i, p := range []float64{100, 100, 100, 110, 120, 90} {
		s.OnPriceUpdate(ctx, tick("btc-usd", p, time.Duration(i)*time.Second))
	}
	assert.False(t, s.Ledger().Position().IsLong(), "flat after cross down")
	bal := s.Ledger().Balances()
	assert.Equal(t, 0.0, bal["BTC"])
	assert.InDelta(t, 10000-0.0999*110+0.0999*90, bal["USD"], 1e-9)

	// Flat again, so the next cross up re-enters.
	for i, p := range []float64{80, 130} {
		s.OnPriceUpdate(ctx, tick("btc-usd", p, time.Duration(6+i)*time.Second))
	}
	assert.True(t, s.Ledger().Position().IsLong())
	exec.AssertExpectations(t)
}

func TestSMACrossover_BudgetCapSkipsExecutor(t *testing.T) {
	exec := &mockExecutor{}
	p := DefaultCrossoverParams()
	p.Symbol = "btc-usd"
	p.WindowSize = 2
	p.Balances = map[string]float64{"USD": 5}
	s, err := NewSMACrossover(p, Deps{Executor: exec})
	require.NoError(t, err)

	ctx := context.Background()
	for i, price := range []float64{100, 100, 110} {
		s.OnPriceUpdate(ctx, tick("btc-usd", price, time.Duration(i)*time.Second))
	}
	exec.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, s.Ledger().Position().IsLong())
}

func TestCrossoverParams_Validate(t *testing.T) {
	p := DefaultCrossoverParams()
	p.Symbol = "btc-usd"
	assert.NoError(t, p.Validate())

	p.Quantity = 0
	assert.Error(t, p.Validate())

	_, err := NewSMACrossover(CrossoverParams{Name: "x", Symbol: "btcusd", WindowSize: 3, Quantity: 1}, Deps{Executor: &mockExecutor{}})
	assert.Error(t, err, "symbol without quote")
}

// ────────────────────────────────────────────────────────────
// ADXTrend
// ────────────────────────────────────────────────────────────

// feedTrend sends two ticks per minute for minutes [from, to]: 100+10i on
// the minute and 105+10i at +30s. Each minute boundary closes a candle with
// range 10 and a rising close.
func feedTrend(s *ADXTrend, from, to int) {
	ctx := context.Background()
	for i := from; i <= to; i++ {
		base := time.Duration(i) * time.Minute
		s.OnPriceUpdate(ctx, tick("btc-usd", 100+10*float64(i), base))
		s.OnPriceUpdate(ctx, tick("btc-usd", 105+10*float64(i), base+30*time.Second))
	}
}

func TestADXTrend_EntersOnceAndStopsOut(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Buy", mock.Anything, "BTC", mock.AnythingOfType("float64")).
		Return(model.Execution{Amount: 2, Price: 170}, nil).Once()
	exec.On("Sell", mock.Anything, "BTC", 2.0).
		Return(model.Execution{Amount: 2, Price: 100}, nil).Once()

	var rejects []string
	s, err := NewADXTrend(context.Background(), smallTrendParams(), Deps{
		Executor: exec,
		Hooks:    Hooks{OnGateReject: func(_, gate string) { rejects = append(rejects, gate) }},
	})
	require.NoError(t, err)

	// Seventh candle closes at minute 7 and triggers the entry; minute 8
	// closes another candle while long, which must not buy again.
	feedTrend(s, 0, 8)

	pos := s.Ledger().Position()
	require.True(t, pos.IsLong())
	snap, ok := s.LastSnapshot()
	require.True(t, ok)
	assert.Greater(t, snap.ADX, 25.0)
	assert.Greater(t, snap.Close, snap.EMA)

	qty := exec.Calls[0].Arguments.Get(2).(float64)
	assert.InDelta(t, 10000*0.04/170, qty, 1e-9)
	assert.InDelta(t, 170-1.5*10, pos.StopLoss, 1e-6)
	assert.InDelta(t, 170+5.5*10, pos.TakeProfit, 1e-6)
	assert.Empty(t, rejects)

	// Intra-candle tick below the stop exits immediately.
	s.OnPriceUpdate(context.Background(), tick("btc-usd", 100, 8*time.Minute+40*time.Second))
	assert.False(t, s.Ledger().Position().IsLong())
	assert.Equal(t, 0.0, s.Ledger().Balances()["BTC"])
	exec.AssertExpectations(t)
}

func TestADXTrend_TakeProfit(t *testing.T) {
	exec := &mockExecutor{}
	exec.On("Buy", mock.Anything, "BTC", mock.Anything).
		Return(model.Execution{Amount: 1, Price: 170}, nil).Once()
	exec.On("Sell", mock.Anything, "BTC", 1.0).
		Return(model.Execution{Amount: 1, Price: 230}, nil).Once()

	s, err := NewADXTrend(context.Background(), smallTrendParams(), Deps{Executor: exec})
	require.NoError(t, err)
	feedTrend(s, 0, 7)
	require.True(t, s.Ledger().Position().IsLong())

	s.OnPriceUpdate(context.Background(), tick("btc-usd", 230, 7*time.Minute+45*time.Second))
	assert.False(t, s.Ledger().Position().IsLong())
	require.Len(t, s.Ledger().Trades(), 1)
	assert.Equal(t, "TP Hit", s.Ledger().Trades()[0].Reason)
	exec.AssertExpectations(t)
}

func TestADXTrend_VolatilityGateBlocksEntry(t *testing.T) {
	exec := &mockExecutor{}
	var (
		mu      sync.Mutex
		rejects = map[string]int{}
	)
	s, err := NewADXTrend(context.Background(), smallTrendParams(), Deps{
		Executor: exec,
		Hooks: Hooks{OnGateReject: func(_, gate string) {
			mu.Lock()
			rejects[gate]++
			mu.Unlock()
		}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i <= 10; i++ {
		s.OnPriceUpdate(ctx, tick("btc-usd", 100, time.Duration(i)*time.Minute))
	}

	exec.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, s.Ledger().Position().IsLong())
	assert.Equal(t, 4, rejects["volatility"], "candles 7..10 evaluated")
	assert.Zero(t, rejects["trend"])
}

func TestADXTrend_Backfill(t *testing.T) {
	var gotLimit int
	loader := loaderFunc(func(_ context.Context, pair model.Pair, interval time.Duration, limit int) ([]model.Candle, error) {
		gotLimit = limit
		assert.Equal(t, "BTC", pair.Base)
		assert.Equal(t, time.Minute, interval)
		out := make([]model.Candle, 10)
		for i := range out {
			out[i] = model.Candle{Open: 100, High: 101, Low: 99, Close: 100, Start: t0.Add(time.Duration(i-10) * time.Minute)}
		}
		return out, nil
	})

	p := smallTrendParams()
	p.Backfill = true
	s, err := NewADXTrend(context.Background(), p, Deps{Executor: &mockExecutor{}, Loader: loader})
	require.NoError(t, err)
	assert.Equal(t, 55, gotLimit)
	assert.Equal(t, 10, s.Indicators().Len())
	assert.True(t, s.Indicators().Ready())
}

func TestADXTrend_BackfillFailureIsNonFatal(t *testing.T) {
	loader := loaderFunc(func(context.Context, model.Pair, time.Duration, int) ([]model.Candle, error) {
		return nil, errors.New("exchange unreachable")
	})
	p := smallTrendParams()
	p.Backfill = true
	s, err := NewADXTrend(context.Background(), p, Deps{Executor: &mockExecutor{}, Loader: loader})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Indicators().Len())
}

func TestTrendParams_Validate(t *testing.T) {
	p := smallTrendParams()
	require.NoError(t, p.Validate())

	bad := p
	bad.Risk = 1.5
	assert.Error(t, bad.Validate())

	bad = p
	bad.HistorySize = 3
	assert.Error(t, bad.Validate())

	bad = p
	bad.Interval = 0
	assert.Error(t, bad.Validate())
}
