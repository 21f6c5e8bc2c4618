// Package ws streams rate updates from a websocket price feed.
package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// Config holds configuration for the websocket feed.
type Config struct {
	URL            string        `mapstructure:"url"`
	Symbols        []string      `mapstructure:"symbols"` // subscribed and kept; empty keeps every symbol
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// Feed connects to a rates websocket and pushes one RawTick per symbol in
// every message. Messages are JSON objects mapping symbol to price,
// optionally wrapped in a "rates" or "data" object with a "ts" field in
// unix milliseconds:
//
//	{"btc-usd": "42000.5", "eth-usd": 2250.1}
//	{"ts": 1700000000000, "rates": {"btc-usd": "42000.5"}}
type Feed struct {
	cfg    Config
	dialer *websocket.Dialer
	keep   map[string]bool
	log    *zap.Logger
	now    func() time.Time

	// Optional metrics hooks
	OnReconnect func()
	OnMessage   func(ticks int)
}

// New creates a feed. Nothing is dialed until Run.
func New(cfg Config, log *zap.Logger) *Feed {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxBackoff < cfg.ReconnectDelay {
		cfg.MaxBackoff = 30 * time.Second
	}
	var keep map[string]bool
	if len(cfg.Symbols) > 0 {
		keep = make(map[string]bool, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			keep[model.NormalizeSymbol(s)] = true
		}
	}
	return &Feed{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		keep:   keep,
		log:    logger.OrNop(log).With(zap.String("feed", cfg.URL)),
		now:    time.Now,
	}
}

// Run streams ticks into out until ctx is cancelled, reconnecting with
// exponential backoff whenever the connection drops.
func (f *Feed) Run(ctx context.Context, out chan<- model.RawTick) error {
	delay := f.cfg.ReconnectDelay
	for {
		conn, err := f.connect(ctx)
		if err == nil {
			delay = f.cfg.ReconnectDelay
			err = f.listen(ctx, conn, out)
		}
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn("websocket disconnected, reconnecting", zap.Error(err), zap.Duration("backoff", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.cfg.MaxBackoff {
			delay = f.cfg.MaxBackoff
		}
		if f.OnReconnect != nil {
			f.OnReconnect()
		}
	}
}

func (f *Feed) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	f.log.Info("websocket connected")

	if len(f.cfg.Symbols) > 0 {
		sub := map[string]interface{}{
			"op":   "subscribe",
			"args": f.cfg.Symbols,
		}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "subscribe")
		}
	}
	return conn, nil
}

func (f *Feed) listen(ctx context.Context, conn *websocket.Conn, out chan<- model.RawTick) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}

		ticks, err := ParseRates(msg, f.now())
		if err != nil {
			f.log.Warn("ignoring message", zap.Error(err), zap.Int("bytes", len(msg)))
			continue
		}
		if f.OnMessage != nil {
			f.OnMessage(len(ticks))
		}
		for _, t := range ticks {
			if f.keep != nil && !f.keep[model.NormalizeSymbol(t.Symbol)] {
				continue
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ParseRates decodes one rates message. Prices are passed through as the
// string or json.Number found on the wire; validation happens downstream
// so malformed prices are counted per symbol. now stamps messages without
// a "ts" field.
func ParseRates(msg []byte, now time.Time) ([]model.RawTick, error) {
	if !gjson.ValidBytes(msg) {
		return nil, errors.New("invalid json")
	}
	root := gjson.ParseBytes(msg)
	if !root.IsObject() {
		return nil, errors.Errorf("expected object, got %s", root.Type)
	}

	ts := now
	if v := root.Get("ts"); v.Exists() && v.Int() > 0 {
		ts = time.UnixMilli(v.Int()).UTC()
	}

	rates := root
	for _, key := range []string{"rates", "data"} {
		if v := root.Get(key); v.IsObject() {
			rates = v
			break
		}
	}

	var ticks []model.RawTick
	rates.ForEach(func(key, value gjson.Result) bool {
		sym := key.String()
		if sym == "ts" || sym == "type" {
			return true
		}
		var price any
		switch value.Type {
		case gjson.String:
			price = value.String()
		case gjson.Number:
			price = json.Number(value.Raw)
		default:
			price = value.Raw
		}
		ticks = append(ticks, model.RawTick{Symbol: sym, Price: price, TS: ts})
		return true
	})
	return ticks, nil
}
