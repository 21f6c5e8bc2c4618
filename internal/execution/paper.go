// Package execution provides order executors and the trade journal.
//
// PaperExecutor fills at the last marked price with simulated slippage.
// TransactionExecutor places market orders as wallet-to-wallet transactions
// over a REST API. Journal persists fills to SQLite.
package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// amountPlaces is the precision executed quantities are rounded to.
const amountPlaces = 8

// PaperFill represents a simulated order fill.
type PaperFill struct {
	OrderID  string     `json:"order_id"`
	Side     model.Side `json:"side"`
	Asset    string     `json:"asset"`
	Qty      float64    `json:"qty"`
	Price    float64    `json:"price"`
	Mark     float64    `json:"mark"`
	Slippage float64    `json:"slippage"` // absolute, in quote currency per unit
	FilledAt time.Time  `json:"filled_at"`
}

// PaperExecutor simulates order execution without real broker calls.
// Useful for backtesting and paper trading. Prices come from MarkPrice.
type PaperExecutor struct {
	mu       sync.RWMutex
	marks    map[string]float64 // base asset -> last price
	fills    []PaperFill
	orderSeq int64

	// Simulation parameters
	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)

	log *zap.Logger
	now func() time.Time
}

// NewPaperExecutor creates a paper trading executor.
// slippageBps controls simulated slippage in basis points.
func NewPaperExecutor(slippageBps int64, log *zap.Logger) *PaperExecutor {
	return &PaperExecutor{
		marks:       make(map[string]float64),
		fills:       make([]PaperFill, 0, 1000),
		slippageBps: slippageBps,
		log:         logger.OrNop(log),
		now:         time.Now,
	}
}

// MarkPrice records the latest price for the base asset of symbol.
func (p *PaperExecutor) MarkPrice(symbol string, price float64) {
	pair, err := model.ParsePair(symbol)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.marks[pair.Base] = price
	p.mu.Unlock()
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []PaperFill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]PaperFill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func (p *PaperExecutor) Buy(ctx context.Context, asset string, qty float64) (model.Execution, error) {
	return p.fill(ctx, model.SideBuy, asset, qty)
}

func (p *PaperExecutor) Sell(ctx context.Context, asset string, qty float64) (model.Execution, error) {
	return p.fill(ctx, model.SideSell, asset, qty)
}

func (p *PaperExecutor) fill(ctx context.Context, side model.Side, asset string, qty float64) (model.Execution, error) {
	if err := ctx.Err(); err != nil {
		return model.Execution{}, err
	}
	if !(qty > 0) {
		return model.Execution{}, errors.Errorf("paper: invalid quantity %f", qty)
	}
	asset = strings.ToUpper(asset)

	p.mu.Lock()
	mark, ok := p.marks[asset]
	if !ok {
		p.mu.Unlock()
		return model.Execution{}, errors.Errorf("paper: no price for %s", asset)
	}

	// Buys fill higher, sells lower.
	markDec := decimal.NewFromFloat(mark)
	slip := markDec.Mul(decimal.NewFromInt(p.slippageBps)).Div(decimal.NewFromInt(10000))
	priceDec := markDec.Add(slip)
	if side == model.SideSell {
		priceDec = markDec.Sub(slip)
	}
	amount, _ := decimal.NewFromFloat(qty).Round(amountPlaces).Float64()
	price, _ := priceDec.Float64()
	slippage, _ := slip.Float64()

	p.orderSeq++
	f := PaperFill{
		OrderID:  fmt.Sprintf("PAPER-%d", p.orderSeq),
		Side:     side,
		Asset:    asset,
		Qty:      amount,
		Price:    price,
		Mark:     mark,
		Slippage: slippage,
		FilledAt: p.now(),
	}
	p.fills = append(p.fills, f)
	p.mu.Unlock()

	p.log.Info("paper fill",
		zap.String("order_id", f.OrderID),
		zap.String("side", string(side)),
		zap.String("asset", asset),
		zap.Float64("qty", amount),
		zap.Float64("price", price),
		zap.Float64("slippage", slippage),
	)
	return model.Execution{Amount: amount, Price: price}, nil
}
