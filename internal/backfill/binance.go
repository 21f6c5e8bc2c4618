// Package backfill loads historical candles used to pre-warm indicator
// history before live ticks arrive.
package backfill

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

const (
	defaultBinanceURL = "https://api.binance.com"
	klinesPath        = "/api/v3/klines"
	maxKlines         = 1000
)

// timeframes maps candle intervals to Binance kline interval codes.
var timeframes = map[time.Duration]string{
	time.Minute:      "1m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	4 * time.Hour:    "4h",
	24 * time.Hour:   "1d",
}

// Timeframe returns the Binance interval code for d, defaulting to "1h"
// for intervals Binance has no direct equivalent for.
func Timeframe(d time.Duration) string {
	if tf, ok := timeframes[d]; ok {
		return tf
	}
	return "1h"
}

// MarketSymbol maps a pair to its Binance market, e.g. btc-usd -> BTCUSDT.
// USD quotes trade against USDT on Binance.
func MarketSymbol(p model.Pair) string {
	quote := p.Quote
	if quote == "USD" {
		quote = "USDT"
	}
	return p.Base + quote
}

// BinanceConfig configures the Binance kline loader.
type BinanceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Binance fetches klines from the public Binance REST API.
// It implements model.HistoryLoader.
type Binance struct {
	baseURL string
	httpc   http.Client
	log     *zap.Logger
}

var _ model.HistoryLoader = (*Binance)(nil)

// NewBinance creates a Binance kline loader.
func NewBinance(cfg BinanceConfig, log *zap.Logger) *Binance {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBinanceURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Binance{
		baseURL: cfg.BaseURL,
		httpc:   http.Client{Timeout: cfg.Timeout},
		log:     logger.OrNop(log),
	}
}

// LoadHistory fetches the newest limit closed-or-forming klines for the
// pair, oldest first.
func (b *Binance) LoadHistory(ctx context.Context, pair model.Pair, interval time.Duration, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxKlines {
		limit = maxKlines
	}

	params := url.Values{}
	params.Add("symbol", MarketSymbol(pair))
	params.Add("interval", Timeframe(interval))
	params.Add("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+klinesPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "binance: build request")
	}
	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "binance: fetch klines for %s", pair)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "binance: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("binance: status %d: %s", resp.StatusCode, gjson.GetBytes(body, "msg").String())
	}

	candles, err := ParseKlines(body)
	if err != nil {
		return nil, err
	}
	b.log.Debug("fetched klines",
		zap.String("symbol", pair.Symbol),
		zap.String("market", MarketSymbol(pair)),
		zap.Int("count", len(candles)),
	)
	return candles, nil
}

// ParseKlines decodes a Binance kline array:
//
//	[[openTimeMs, "open", "high", "low", "close", "volume", closeTimeMs, ...], ...]
func ParseKlines(body []byte) ([]model.Candle, error) {
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, errors.New("binance: expected kline array")
	}
	rows := root.Array()
	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		f := row.Array()
		if len(f) < 5 {
			return nil, errors.Errorf("binance: kline %d has %d fields", i, len(f))
		}
		c := model.Candle{
			Start: time.UnixMilli(f[0].Int()).UTC(),
			Open:  f[1].Float(),
			High:  f[2].Float(),
			Low:   f[3].Float(),
			Close: f[4].Float(),
		}
		if c.Open <= 0 || c.High < c.Low {
			return nil, errors.Errorf("binance: kline %d is malformed: %s", i, row.Raw)
		}
		candles = append(candles, c)
	}
	return candles, nil
}
