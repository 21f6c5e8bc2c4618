package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func candles(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = model.Candle{Open: p, High: p + 2, Low: p - 1, Close: p + 1, Start: t0.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

func TestWriterRun_DrainsQueueOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.db")
	w, err := New(WriterConfig{DBPath: path}, nil)
	require.NoError(t, err)
	defer w.Close()

	var commits int
	w.OnCommit = func(time.Duration) { commits++ }

	for _, c := range candles(5) {
		w.CandleClosed("BTC-USD", time.Hour, c)
	}
	w.Filled(model.Fill{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	assert.Equal(t, 1, commits)

	last, err := w.LastTimestamp("btc-usd", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(4*time.Hour), last)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadCandles(context.Background(), "btc-usd", time.Hour, time.Time{})
	require.NoError(t, err)
	if diff := cmp.Diff(candles(5), got); diff != "" {
		t.Errorf("candles mismatch (-want +got):\n%s", diff)
	}
}

func TestReader_LoadHistoryReturnsNewestAscending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.db")
	w, err := New(WriterConfig{DBPath: path}, nil)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.WriteCandles("btc-usd", time.Hour, candles(10)))
	require.NoError(t, w.WriteCandles("btc-usd", time.Minute, candles(3)))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	pair, _ := model.ParsePair("btc-usd")
	got, err := r.LoadHistory(context.Background(), pair, time.Hour, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, t0.Add(6*time.Hour), got[0].Start)
	assert.Equal(t, t0.Add(9*time.Hour), got[3].Start)

	after, err := r.ReadCandles(context.Background(), "btc-usd", time.Hour, t0.Add(7*time.Hour))
	require.NoError(t, err)
	assert.Len(t, after, 2)

	empty, err := r.LoadHistory(context.Background(), model.Pair{Symbol: "eth-usd"}, time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWriter_LastTimestampEmpty(t *testing.T) {
	w, err := New(WriterConfig{DBPath: filepath.Join(t.TempDir(), "c.db")}, nil)
	require.NoError(t, err)
	defer w.Close()

	ts, err := w.LastTimestamp("btc-usd", time.Hour)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}

func TestWriter_DropsWhenQueueFull(t *testing.T) {
	w, err := New(WriterConfig{DBPath: filepath.Join(t.TempDir(), "c.db"), QueueSize: 2}, nil)
	require.NoError(t, err)
	defer w.Close()

	for _, c := range candles(5) {
		w.CandleClosed("btc-usd", time.Hour, c)
	}
	assert.Len(t, w.queue, 2)
}
