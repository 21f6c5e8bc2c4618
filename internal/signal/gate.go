package signal

// Gate names, used as log fields and metric labels.
const (
	GateVolatility = "volatility"
	GateTrend      = "trend"
)

// GateResult is the outcome of an entry gate.
type GateResult struct {
	Gate     string
	Pass     bool
	Required float64 // threshold the measured value had to reach
	Actual   float64 // measured value
}

// VolatilityParams configures the volatility gate.
type VolatilityParams struct {
	SLMult       float64 // ATR multiplier for the stop distance
	SpreadPct    float64 // estimated round-trip spread as a fraction of price
	SafetyFactor float64 // required margin of stop distance over spread cost
}

// VolatilityGate passes when the expected stop distance (atr*SLMult) is at
// least the estimated transaction cost (close*SpreadPct) scaled by SafetyFactor.
func VolatilityGate(atr, close float64, p VolatilityParams) GateResult {
	required := close * p.SpreadPct * p.SafetyFactor
	actual := atr * p.SLMult
	return GateResult{
		Gate:     GateVolatility,
		Pass:     actual >= required,
		Required: required,
		Actual:   actual,
	}
}

// TrendGate passes when ADX is above threshold and close is above the EMA.
func TrendGate(adx, close, ema, threshold float64) GateResult {
	return GateResult{
		Gate:     GateTrend,
		Pass:     adx > threshold && close > ema,
		Required: threshold,
		Actual:   adx,
	}
}
