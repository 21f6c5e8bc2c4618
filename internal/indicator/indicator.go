// Package indicator provides technical indicator calculations over prices and
// candles.
//
// Two families are provided: an O(1) incremental SMA for tick-driven strategies,
// and exponential-family series (EMA, Wilder RMA, True Range, ATR, DI, DX, ADX)
// recomputed over a bounded candle history on every candle close. Degenerate
// divisions are normalized to 0 so NaN/Inf never reach signal logic.
package indicator

import "math"

// safeDiv returns num/den, or 0 when den is zero or the result is not finite.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func last(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}
