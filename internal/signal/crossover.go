// Package signal evaluates entry and exit conditions from prices and indicator
// state. It holds no wallet or position state of its own; strategies combine
// these evaluators with a ledger.
package signal

// Event is the result of observing a price against its moving average.
type Event int

const (
	None Event = iota
	CrossUp
	CrossDown
)

func (e Event) String() string {
	switch e {
	case CrossUp:
		return "cross_up"
	case CrossDown:
		return "cross_down"
	default:
		return "none"
	}
}

// sample is one observed (price, average) pair.
type sample struct {
	price float64
	avg   float64
}

// Crossover detects a price crossing its moving average between consecutive
// samples. The previous sample is absent (nil) until the first observation.
type Crossover struct {
	prev *sample
}

// Observe records (price, avg) and reports a crossing relative to the previous
// observation. The first observation never produces an event. Callers only
// observe once the average is defined.
func (c *Crossover) Observe(price, avg float64) Event {
	prev := c.prev
	c.prev = &sample{price: price, avg: avg}
	if prev == nil {
		return None
	}

	switch {
	case prev.price <= prev.avg && price > avg:
		return CrossUp
	case prev.price >= prev.avg && price < avg:
		return CrossDown
	default:
		return None
	}
}
