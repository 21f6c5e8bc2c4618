package indicator

import "tradecore/internal/ringbuf"

// SMA calculates a Simple Moving Average over a rolling window of prices.
// Each update is O(1): the evicted price is subtracted from a running sum
// before the new one is added.
type SMA struct {
	period int
	window *ringbuf.Ring[float64]
	sum    float64
}

// NewSMA creates a new SMA with the given period (minimum 1).
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		window: ringbuf.New[float64](period),
	}
}

func (s *SMA) Name() string { return "SMA" }

// Period returns the window size.
func (s *SMA) Period() int { return s.period }

// Update feeds the next price.
func (s *SMA) Update(price float64) {
	if old, evicted := s.window.Push(price); evicted {
		s.sum -= old
	}
	s.sum += price
}

// Value returns the mean of the last Period prices. ok is false until the
// window is full; the value must not be used in that case.
func (s *SMA) Value() (float64, bool) {
	if !s.Ready() {
		return 0, false
	}
	return s.sum / float64(s.period), true
}

// Ready reports whether Period prices have been observed.
func (s *SMA) Ready() bool { return s.window.Full() }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.window.Reset()
	s.sum = 0
}
