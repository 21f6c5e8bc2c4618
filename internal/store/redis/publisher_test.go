package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tradecore/internal/model"
)

type fakeSink struct {
	fail bool
	sent []message
}

func (f *fakeSink) send(_ context.Context, m message) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.sent = append(f.sent, m)
	return nil
}

func newTestPublisher(cb *CircuitBreaker, queue int) (*Publisher, *fakeSink) {
	fs := &fakeSink{}
	p := newPublisher(PublisherConfig{QueueSize: queue, MaxBuffer: 3}, cb, nil)
	p.send = fs.send
	return p, fs
}

func drain(p *Publisher) {
	for {
		select {
		case m := <-p.queue:
			p.write(context.Background(), m)
		default:
			return
		}
	}
}

func TestPublisher_CandleAndFillMessages(t *testing.T) {
	p, fs := newTestPublisher(nil, 10)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	p.CandleClosed("BTC-USD", time.Hour, model.Candle{Open: 1, High: 2, Low: 0.5, Close: 1.5, Start: start})
	p.Filled(model.Fill{OrderID: "o1", Symbol: "btc-usd", Side: model.SideBuy, Amount: 0.1, Price: 100})
	drain(p)

	require.Len(t, fs.sent, 2)
	c := fs.sent[0]
	assert.Equal(t, "candle:3600s:btc-usd", c.Stream)
	assert.Equal(t, "candle:3600s:btc-usd:latest", c.Latest)
	assert.Equal(t, "pub:candle:3600s:btc-usd", c.Channel)
	assert.Equal(t, 1.5, gjson.Get(c.Data, "candle.close").Float())
	assert.Equal(t, int64(3600), gjson.Get(c.Data, "interval").Int())

	f := fs.sent[1]
	assert.Equal(t, "fill:btc-usd", f.Stream)
	assert.Empty(t, f.Latest)
	assert.Equal(t, "o1", gjson.Get(f.Data, "order_id").String())
}

func TestPublisher_BuffersWhileFailingAndReplays(t *testing.T) {
	cb := NewCircuitBreaker(2, 30*time.Millisecond)
	p, fs := newTestPublisher(cb, 10)

	var buffered, flushed int
	p.OnBuffer = func() { buffered++ }
	p.OnFlush = func(n int) { flushed += n }

	fs.fail = true
	for i := 0; i < 5; i++ {
		p.Filled(model.Fill{OrderID: string(rune('a' + i)), Symbol: "btc-usd"})
	}
	drain(p)

	assert.Equal(t, StateOpen, cb.CurrentState())
	assert.Equal(t, 5, buffered)
	assert.Equal(t, 3, p.PendingCount(), "oldest dropped beyond MaxBuffer")

	fs.fail = false
	time.Sleep(40 * time.Millisecond)
	p.Filled(model.Fill{OrderID: "z", Symbol: "btc-usd"})
	drain(p)

	assert.Equal(t, StateClosed, cb.CurrentState())
	assert.Equal(t, 0, p.PendingCount())
	assert.Equal(t, 3, flushed)
	require.Len(t, fs.sent, 4)
	assert.Equal(t, "z", gjson.Get(fs.sent[0].Data, "order_id").String())
	assert.Equal(t, "c", gjson.Get(fs.sent[1].Data, "order_id").String())
}

func TestPublisher_QueueFullDrops(t *testing.T) {
	p, _ := newTestPublisher(nil, 1)
	p.Filled(model.Fill{Symbol: "btc-usd"})
	p.Filled(model.Fill{Symbol: "btc-usd"})
	assert.Len(t, p.queue, 1)
}

func TestParseTickValues(t *testing.T) {
	tick, ok := parseTickValues(map[string]interface{}{"symbol": "btc-usd", "price": "42000.1", "ts": "1700000000000"})
	require.True(t, ok)
	assert.Equal(t, "btc-usd", tick.Symbol)
	assert.Equal(t, "42000.1", tick.Price)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), tick.TS)

	tick, ok = parseTickValues(map[string]interface{}{"symbol": "btc-usd", "price": "x"})
	require.True(t, ok, "price validity is checked downstream")
	assert.True(t, tick.TS.IsZero())

	_, ok = parseTickValues(map[string]interface{}{"price": "1"})
	assert.False(t, ok)
	_, ok = parseTickValues(map[string]interface{}{"symbol": "btc-usd"})
	assert.False(t, ok)
}
