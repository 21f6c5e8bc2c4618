package ledger

import "time"

// Trade is one completed round trip (entry leg + exit leg).
type Trade struct {
	Entry    float64   `json:"entry"`
	Exit     float64   `json:"exit"`
	Qty      float64   `json:"qty"`
	Cost     float64   `json:"cost"`     // quote spent on entry
	Proceeds float64   `json:"proceeds"` // quote received on exit
	PnL      float64   `json:"pnl"`
	Reason   string    `json:"reason"`
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at"`
}

// Summary aggregates realized performance.
type Summary struct {
	RealizedPnL float64 `json:"realized_pnl"`
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"` // 0-100
	BestTrade   float64 `json:"best_trade"`
	WorstTrade  float64 `json:"worst_trade"`
}

type pnlTracker struct {
	trades   []Trade
	realized float64
}

func (p *pnlTracker) record(t Trade) {
	p.trades = append(p.trades, t)
	p.realized += t.PnL
}

func (p *pnlTracker) summary() Summary {
	s := Summary{RealizedPnL: p.realized, TotalTrades: len(p.trades)}
	for i, t := range p.trades {
		if t.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		if i == 0 || t.PnL > s.BestTrade {
			s.BestTrade = t.PnL
		}
		if i == 0 || t.PnL < s.WorstTrade {
			s.WorstTrade = t.PnL
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	return s
}
