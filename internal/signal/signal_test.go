package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tradecore/internal/model"
)

func TestCrossover_FirstObservationNeverFires(t *testing.T) {
	var c Crossover
	// Above the average with no history: nothing to cross from.
	assert.Equal(t, None, c.Observe(101, 100))
	// The first sample is kept, so the next one is compared against it.
	assert.Equal(t, CrossDown, c.Observe(99, 100))
}

func TestCrossover_Events(t *testing.T) {
	tests := []struct {
		name     string
		prevP    float64
		prevAvg  float64
		price    float64
		avg      float64
		expected Event
	}{
		{name: "cross up", prevP: 99, prevAvg: 100, price: 101, avg: 100, expected: CrossUp},
		{name: "cross up from touching", prevP: 100, prevAvg: 100, price: 101, avg: 100, expected: CrossUp},
		{name: "cross down", prevP: 101, prevAvg: 100, price: 99, avg: 100, expected: CrossDown},
		{name: "cross down from touching", prevP: 100, prevAvg: 100, price: 99, avg: 100, expected: CrossDown},
		{name: "stays above", prevP: 101, prevAvg: 100, price: 102, avg: 100, expected: None},
		{name: "stays below", prevP: 98, prevAvg: 100, price: 99, avg: 100, expected: None},
		{name: "lands on average", prevP: 99, prevAvg: 100, price: 100, avg: 100, expected: None},
	}

	for _, test := range tests {
		var c Crossover
		c.Observe(test.prevP, test.prevAvg)
		got := c.Observe(test.price, test.avg)
		if got != test.expected {
			t.Errorf("%s: expected %v, got %v", test.name, test.expected, got)
		}
	}
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "cross_up", CrossUp.String())
	assert.Equal(t, "cross_down", CrossDown.String())
	assert.Equal(t, "none", None.String())
}

func TestVolatilityGate(t *testing.T) {
	// close=10000 spread=0.0025 safety=1.5 -> required 37.5; atr=2 sl=1 -> actual 2.
	res := VolatilityGate(2, 10000, VolatilityParams{SLMult: 1, SpreadPct: 0.0025, SafetyFactor: 1.5})
	assert.False(t, res.Pass)
	assert.InDelta(t, 37.5, res.Required, 1e-9)
	assert.InDelta(t, 2.0, res.Actual, 1e-9)
	assert.Equal(t, GateVolatility, res.Gate)

	// Exactly at the threshold passes.
	res = VolatilityGate(37.5, 10000, VolatilityParams{SLMult: 1, SpreadPct: 0.0025, SafetyFactor: 1.5})
	assert.True(t, res.Pass)

	res = VolatilityGate(100, 10000, VolatilityParams{SLMult: 1.5, SpreadPct: 0.0025, SafetyFactor: 1.1})
	assert.True(t, res.Pass)
}

func TestTrendGate(t *testing.T) {
	assert.True(t, TrendGate(30, 105, 100, 25).Pass)
	assert.False(t, TrendGate(25, 105, 100, 25).Pass, "ADX must be strictly above threshold")
	assert.False(t, TrendGate(40, 100, 100, 25).Pass, "close must be strictly above EMA")
	assert.False(t, TrendGate(10, 90, 100, 25).Pass)
}

func TestCheckExit(t *testing.T) {
	long := model.Position{State: model.Long, StopLoss: 49000, TakeProfit: 51000}

	_, hit := CheckExit(50000, long)
	assert.False(t, hit)

	reason, hit := CheckExit(48999, long)
	assert.True(t, hit)
	assert.Equal(t, StopLossHit, reason)

	reason, hit = CheckExit(51001, long)
	assert.True(t, hit)
	assert.Equal(t, TakeProfitHit, reason)

	// Crossed levels: a price breaching both resolves to stop-loss.
	crossed := model.Position{State: model.Long, StopLoss: 100, TakeProfit: 90}
	reason, hit = CheckExit(95, crossed)
	assert.True(t, hit)
	assert.Equal(t, StopLossHit, reason)

	_, hit = CheckExit(1, model.Position{})
	assert.False(t, hit, "flat positions never exit")

	_, hit = CheckExit(1, model.Position{State: model.Long})
	assert.False(t, hit, "long without levels never exits on price")
}
