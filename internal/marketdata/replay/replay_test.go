package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/marketdata/agg"
	"tradecore/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type sliceSource []model.Candle

func (s sliceSource) ReadCandles(_ context.Context, _ string, _ time.Duration, after time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range s {
		if c.Start.After(after) {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestTicks_PathOrder(t *testing.T) {
	up := model.Candle{Open: 10, High: 15, Low: 8, Close: 14, Start: t0}
	ticks := Ticks("btc-usd", up, time.Hour)
	require.Len(t, ticks, 4)
	prices := []any{ticks[0].Price, ticks[1].Price, ticks[2].Price, ticks[3].Price}
	assert.Equal(t, []any{10.0, 8.0, 15.0, 14.0}, prices)
	assert.Equal(t, t0.Add(45*time.Minute), ticks[3].TS)

	down := model.Candle{Open: 14, High: 15, Low: 8, Close: 10, Start: t0}
	ticks = Ticks("btc-usd", down, time.Hour)
	assert.Equal(t, 15.0, ticks[1].Price)
	assert.Equal(t, 8.0, ticks[2].Price)
}

func TestRun_RebuildsCandles(t *testing.T) {
	src := sliceSource{
		{Open: 10, High: 15, Low: 8, Close: 14, Start: t0},
		{Open: 14, High: 16, Low: 12, Close: 13, Start: t0.Add(time.Hour)},
		{Open: 13, High: 13, Low: 11, Close: 12, Start: t0.Add(2 * time.Hour)},
	}
	out := make(chan model.RawTick, 32)
	n, err := New(src, nil).Run(context.Background(), "btc-usd", time.Hour, time.Time{}, 0, out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	close(out)

	a, err := agg.New(time.Hour)
	require.NoError(t, err)
	var closed []model.Candle
	for tk := range out {
		p, err := model.ParsePrice(tk.Price)
		require.NoError(t, err)
		if c, ok := a.Update(p, tk.TS); ok {
			closed = append(closed, c)
		}
	}
	// The last candle stays open until a later tick arrives.
	require.Len(t, closed, 2)
	assert.Equal(t, src[0], closed[0])
	assert.Equal(t, src[1], closed[1])
}

func TestRun_AfterAndCancel(t *testing.T) {
	src := sliceSource{
		{Open: 1, High: 1, Low: 1, Close: 1, Start: t0},
		{Open: 2, High: 2, Low: 2, Close: 2, Start: t0.Add(time.Minute)},
	}
	out := make(chan model.RawTick, 8)
	n, err := New(src, nil).Run(context.Background(), "btc-usd", time.Minute, t0, 0, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, out, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(src, nil).Run(ctx, "btc-usd", time.Minute, time.Time{}, 0, make(chan model.RawTick))
	assert.ErrorIs(t, err, context.Canceled)
}
