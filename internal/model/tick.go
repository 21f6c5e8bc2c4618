package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Tick is a single parsed price update for one symbol. Ticks are transient.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	TS     time.Time `json:"ts"`
}

// RawTick is a price update as delivered by a feed, before parsing.
// Price may be a string, a JSON number or any Go numeric type.
type RawTick struct {
	Symbol string
	Price  any
	TS     time.Time
}

// ParsePrice converts a feed value into a finite, positive price.
// Every failure wraps ErrParse.
func ParsePrice(raw any) (float64, error) {
	var (
		p   float64
		err error
	)
	switch v := raw.(type) {
	case float64:
		p = v
	case float32:
		p = float64(v)
	case int:
		p = float64(v)
	case int64:
		p = float64(v)
	case json.Number:
		p, err = parseDecimal(string(v))
	case string:
		p, err = parseDecimal(v)
	case []byte:
		p, err = parseDecimal(string(v))
	default:
		return 0, errors.Wrapf(ErrParse, "unsupported price type %T", raw)
	}
	if err != nil {
		return 0, errors.Wrapf(ErrParse, "%v", err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0, errors.Wrapf(ErrParse, "price %v out of range", raw)
	}
	return p, nil
}

// NormalizeSymbol lower-cases and trims a feed symbol ("BTC-USD" -> "btc-usd").
func NormalizeSymbol(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseDecimal reads a plain decimal quote. Feed strings such as "NaN",
// "Inf" or hex floats are rejected.
func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
