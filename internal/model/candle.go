package model

import (
	"encoding/json"
	"time"
)

// Candle is an OHLC bar for a single symbol built from raw ticks.
// It is mutated in place while forming and immutable once emitted.
type Candle struct {
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
	Start time.Time `json:"start"` // wall-clock time of the tick that opened the bar
}

// Seed resets the candle to a single price observed at ts.
func (c *Candle) Seed(price float64, ts time.Time) {
	c.Open = price
	c.High = price
	c.Low = price
	c.Close = price
	c.Start = ts
}

// Apply folds a subsequent price into the forming candle.
func (c *Candle) Apply(price float64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
