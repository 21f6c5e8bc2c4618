package execution

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tradecore/internal/model"
)

// ────────────────────────────────────────────────────────────
// PaperExecutor
// ────────────────────────────────────────────────────────────

func TestPaperExecutor_SlippageBySide(t *testing.T) {
	p := NewPaperExecutor(10, nil) // 0.10%
	p.MarkPrice("BTC-USD", 50000)

	ctx := context.Background()
	buy, err := p.Buy(ctx, "btc", 0.123456789)
	require.NoError(t, err)
	assert.Equal(t, 50050.0, buy.Price)
	assert.Equal(t, 0.12345679, buy.Amount)

	sell, err := p.Sell(ctx, "BTC", 0.1)
	require.NoError(t, err)
	assert.Equal(t, 49950.0, sell.Price)

	fills := p.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, "PAPER-1", fills[0].OrderID)
	assert.Equal(t, model.SideSell, fills[1].Side)
	assert.Equal(t, 50.0, fills[1].Slippage)
}

func TestPaperExecutor_Errors(t *testing.T) {
	p := NewPaperExecutor(0, nil)
	_, err := p.Buy(context.Background(), "ETH", 1)
	assert.Error(t, err, "no mark")

	p.MarkPrice("eth-usd", 2000)
	_, err = p.Buy(context.Background(), "ETH", 0)
	assert.Error(t, err, "zero qty")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Buy(ctx, "ETH", 1)
	assert.ErrorIs(t, err, context.Canceled)

	p.MarkPrice("not-a-pair-symbol", 1)
	assert.Empty(t, p.Fills())
}

// ────────────────────────────────────────────────────────────
// TransactionExecutor
// ────────────────────────────────────────────────────────────

func newTransactionServer(t *testing.T, status int, response string, got *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/transaction", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		*got = body
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTransactionExecutor(t *testing.T, url string) *TransactionExecutor {
	t.Helper()
	ex, err := NewTransactionExecutor(TransactionConfig{
		BaseURL: url + "/api/",
		Token:   "secret",
		Wallets: map[string]string{"usd": "w-usd", "BTC": "w-btc"},
		Timeout: time.Second,
	}, nil)
	require.NoError(t, err)
	return ex
}

func TestTransactionExecutor_Buy(t *testing.T) {
	var got []byte
	srv := newTransactionServer(t, http.StatusCreated,
		`{"data":[{"attributes":{"amountToDestWallet":"0.1","amountFromSourceWallet":1010,"exchangeRate":"10100.5"}}]}`, &got)
	ex := newTransactionExecutor(t, srv.URL)

	res, err := ex.Buy(context.Background(), "btc", 0.1)
	require.NoError(t, err)
	assert.Equal(t, model.Execution{Amount: 0.1, Price: 10100.5}, res)

	assert.Equal(t, "w-usd", gjson.GetBytes(got, "sourceWalletId").String())
	assert.Equal(t, "w-btc", gjson.GetBytes(got, "destWalletId").String())
	assert.Equal(t, gjson.Number, gjson.GetBytes(got, "amountToDestWallet").Type)
	assert.Equal(t, "0.1", gjson.GetBytes(got, "amountToDestWallet").Raw)
	assert.False(t, gjson.GetBytes(got, "amountFromSourceWallet").Exists())
}

func TestTransactionExecutor_Sell(t *testing.T) {
	var got []byte
	srv := newTransactionServer(t, http.StatusOK,
		`{"data":[{"attributes":{"amountFromSourceWallet":0.25,"exchangeRate":9000}}]}`, &got)
	ex := newTransactionExecutor(t, srv.URL)

	res, err := ex.Sell(context.Background(), "BTC", 0.25)
	require.NoError(t, err)
	assert.Equal(t, model.Execution{Amount: 0.25, Price: 9000}, res)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got, &payload))
	assert.Equal(t, "w-btc", payload["sourceWalletId"])
	assert.Equal(t, "w-usd", payload["destWalletId"])
	assert.Equal(t, 0.25, payload["amountFromSourceWallet"])
}

func TestTransactionExecutor_Failures(t *testing.T) {
	var got []byte
	srv := newTransactionServer(t, http.StatusBadRequest, `{"error":"insufficient funds"}`, &got)
	ex := newTransactionExecutor(t, srv.URL)

	_, err := ex.Buy(context.Background(), "BTC", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")

	_, err = ex.Buy(context.Background(), "ETH", 1)
	assert.ErrorContains(t, err, "no wallet found")

	_, err = ex.Sell(context.Background(), "USD", 1)
	assert.ErrorContains(t, err, "against itself")
}

func TestParseExecution(t *testing.T) {
	_, err := parseExecution([]byte(`{"data":[]}`), "amountToDestWallet")
	assert.Error(t, err)

	_, err = parseExecution([]byte(`{"data":[{"attributes":{"amountToDestWallet":"x","exchangeRate":1}}]}`), "amountToDestWallet")
	assert.Error(t, err)

	_, err = parseExecution([]byte(`not json`), "amountToDestWallet")
	assert.Error(t, err)
}

func TestNewTransactionExecutor_RequiresFundingWallet(t *testing.T) {
	_, err := NewTransactionExecutor(TransactionConfig{BaseURL: "http://x", Wallets: map[string]string{"BTC": "w"}}, nil)
	assert.Error(t, err)

	_, err = NewTransactionExecutor(TransactionConfig{}, nil)
	assert.Error(t, err)
}

// ────────────────────────────────────────────────────────────
// Journal
// ────────────────────────────────────────────────────────────

func TestJournal_RecordAndRead(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	defer j.Close()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	j.Filled(model.Fill{OrderID: "a", Strategy: "trend", Symbol: "btc-usd", Side: model.SideBuy,
		Requested: 0.1, Amount: 0.1, Price: 10100, Signal: 10000, Reason: "entry", TS: ts})
	j.Filled(model.Fill{OrderID: "b", Strategy: "trend", Symbol: "btc-usd", Side: model.SideSell,
		Requested: 0.1, Amount: 0.1, Price: 9800, Signal: 9850, Reason: "SL Hit", TS: ts.Add(time.Hour)})
	j.CandleClosed("btc-usd", time.Minute, model.Candle{})

	trades, err := j.Trades(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "b", trades[0].OrderID)
	assert.Equal(t, "SELL", trades[0].Side)
	assert.Equal(t, 9800.0, trades[0].Price)
	assert.Equal(t, "SL Hit", trades[0].Reason)
	assert.Equal(t, "a", trades[1].OrderID)
	assert.Equal(t, 10000.0, trades[1].Signal)
}
