package indicator

import (
	"math"

	"tradecore/internal/model"
)

// ewm applies exponential weighting y[i] = a*x[i] + (1-a)*y[i-1], seeded with
// y[0] = x[0]. There is no warm-up skip.
func ewm(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// EMA returns the exponential moving average of values with the given span,
// smoothing factor 2/(span+1).
func EMA(values []float64, span int) []float64 {
	if span < 1 {
		span = 1
	}
	return ewm(values, 2.0/float64(span+1))
}

// RMA returns Wilder's smoothed moving average of values, smoothing factor
// 1/length. It is the basis of ATR and ADX.
func RMA(values []float64, length int) []float64 {
	if length < 1 {
		length = 1
	}
	return ewm(values, 1.0/float64(length))
}

// Closes extracts close prices.
func Closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per candle.
// The first candle has no previous close and degenerates to high-low.
func TrueRange(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// DirectionalMovement returns +DM and -DM per candle. The first candle has no
// predecessor and contributes 0 to both.
func DirectionalMovement(candles []model.Candle) (plus, minus []float64) {
	plus = make([]float64, len(candles))
	minus = make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plus[i] = up
		}
		if down > up && down > 0 {
			minus[i] = down
		}
	}
	return plus, minus
}

// ATR returns the Average True Range: RMA(TrueRange, length).
func ATR(candles []model.Candle, length int) []float64 {
	return RMA(TrueRange(candles), length)
}

// ADXResult holds the directional series computed by ADX.
type ADXResult struct {
	PlusDI  []float64
	MinusDI []float64
	DX      []float64
	ADX     []float64
}

// ADX computes +DI, -DI, DX and ADX with Wilder smoothing of the given length.
// DI is 0 wherever ATR is 0 and DX is 0 wherever +DI + -DI is 0.
func ADX(candles []model.Candle, length int) ADXResult {
	atr := ATR(candles, length)
	plusDM, minusDM := DirectionalMovement(candles)
	smPlus := RMA(plusDM, length)
	smMinus := RMA(minusDM, length)

	n := len(candles)
	res := ADXResult{
		PlusDI:  make([]float64, n),
		MinusDI: make([]float64, n),
		DX:      make([]float64, n),
	}
	for i := 0; i < n; i++ {
		pdi := 100 * safeDiv(smPlus[i], atr[i])
		mdi := 100 * safeDiv(smMinus[i], atr[i])
		res.PlusDI[i] = pdi
		res.MinusDI[i] = mdi
		res.DX[i] = 100 * safeDiv(math.Abs(pdi-mdi), pdi+mdi)
	}
	res.ADX = RMA(res.DX, length)
	return res
}
