package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestParseRates(t *testing.T) {
	ticks, err := ParseRates([]byte(`{"btc-usd":"42000.5","eth-usd":2250.25}`), t0)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, model.RawTick{Symbol: "btc-usd", Price: "42000.5", TS: t0}, ticks[0])
	assert.Equal(t, model.RawTick{Symbol: "eth-usd", Price: json.Number("2250.25"), TS: t0}, ticks[1])

	p, err := model.ParsePrice(ticks[1].Price)
	require.NoError(t, err)
	assert.Equal(t, 2250.25, p)
}

func TestParseRates_Wrapped(t *testing.T) {
	ticks, err := ParseRates([]byte(`{"type":"rates","ts":1700000000000,"rates":{"BTC-USD":"1"}}`), t0)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "BTC-USD", ticks[0].Symbol)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ticks[0].TS)

	ticks, err = ParseRates([]byte(`{"data":{"eth-usd":"abc"}}`), t0)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, "abc", ticks[0].Price, "bad prices are passed through")
}

func TestParseRates_Invalid(t *testing.T) {
	_, err := ParseRates([]byte(`not json`), t0)
	assert.Error(t, err)
	_, err = ParseRates([]byte(`[1,2]`), t0)
	assert.Error(t, err)
}

// ────────────────────────────────────────────────────────────
// Feed against a local websocket server
// ────────────────────────────────────────────────────────────

func rateServer(t *testing.T, messages []string, subs chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if err == nil && subs != nil {
			select {
			case subs <- string(sub):
			default:
			}
		}
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Drop the connection to force a reconnect.
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeed_StreamsAndReconnects(t *testing.T) {
	subs := make(chan string, 1)
	srv := rateServer(t, []string{
		`{"btc-usd":"100","doge-usd":"0.1"}`,
		`garbage`,
		`{"rates":{"btc-usd":"101"}}`,
	}, subs)
	defer srv.Close()

	f := New(Config{URL: wsURL(srv), Symbols: []string{"BTC-USD"}, ReconnectDelay: 10 * time.Millisecond}, nil)
	var reconnects atomic.Int32
	f.OnReconnect = func() { reconnects.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.RawTick, 16)
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, out) }()

	var got []model.RawTick
	timeout := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case tk := <-out:
			got = append(got, tk)
		case <-timeout:
			t.Fatalf("received %d ticks before timeout", len(got))
		}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, `{"args":["BTC-USD"],"op":"subscribe"}`, <-subs)
	for _, tk := range got {
		assert.Equal(t, "btc-usd", tk.Symbol, "unsubscribed symbols are filtered")
	}
	assert.Equal(t, "100", got[0].Price)
	assert.Equal(t, "101", got[1].Price)
	assert.GreaterOrEqual(t, reconnects.Load(), int32(1))
}

func TestFeed_StopsWhileDialFails(t *testing.T) {
	f := New(Config{URL: "ws://127.0.0.1:1/none", ReconnectDelay: 5 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, f.Run(ctx, make(chan model.RawTick)))
}
