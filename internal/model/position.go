package model

import "time"

// PositionState is the long-only position state machine: Flat -> Long -> Flat.
type PositionState int

const (
	Flat PositionState = iota
	Long
)

// String stringifies the position state.
func (s PositionState) String() string {
	switch s {
	case Flat:
		return "flat"
	case Long:
		return "long"
	default:
		return "unknown"
	}
}

// Position is the single position held by a strategy instance.
// All numeric fields are zero while Flat.
type Position struct {
	State      PositionState `json:"state"`
	Entry      float64       `json:"entry"`       // executed entry price
	Qty        float64       `json:"qty"`         // executed base quantity
	StopLoss   float64       `json:"stop_loss"`   // 0 when undefined
	TakeProfit float64       `json:"take_profit"` // 0 when undefined
	OpenedAt   time.Time     `json:"opened_at"`
}

// IsLong reports whether the position is open.
func (p Position) IsLong() bool { return p.State == Long }

// HasLevels reports whether stop-loss/take-profit levels are armed.
func (p Position) HasLevels() bool { return p.StopLoss > 0 || p.TakeProfit > 0 }
