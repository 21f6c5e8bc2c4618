package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Pair is the base/quote split of a symbol such as "btc-usd".
type Pair struct {
	Symbol string // normalized, e.g. "btc-usd"
	Base   string // e.g. "BTC"
	Quote  string // e.g. "USD"
}

// ParsePair splits a "base-quote" symbol.
func ParsePair(symbol string) (Pair, error) {
	sym := NormalizeSymbol(symbol)
	parts := strings.Split(sym, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, errors.Errorf("symbol %q is not of the form base-quote", symbol)
	}
	if parts[0] == parts[1] {
		return Pair{}, errors.Errorf("symbol %q trades a currency against itself", symbol)
	}
	return Pair{
		Symbol: sym,
		Base:   strings.ToUpper(parts[0]),
		Quote:  strings.ToUpper(parts[1]),
	}, nil
}

func (p Pair) String() string { return p.Symbol }
