package signal

import "tradecore/internal/model"

// ExitReason explains why a position was closed.
type ExitReason string

const (
	StopLossHit   ExitReason = "SL Hit"
	TakeProfitHit ExitReason = "TP Hit"
	CrossDownExit ExitReason = "SMA cross down"
)

// CheckExit compares a live price against the armed levels of a long position.
// Stop-loss is checked first, so a price breaching both exits as StopLossHit.
func CheckExit(price float64, pos model.Position) (ExitReason, bool) {
	if !pos.IsLong() || !pos.HasLevels() {
		return "", false
	}
	if price <= pos.StopLoss {
		return StopLossHit, true
	}
	if price >= pos.TakeProfit {
		return TakeProfitHit, true
	}
	return "", false
}
