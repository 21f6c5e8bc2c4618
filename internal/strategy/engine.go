package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/marketdata/bus"
	"tradecore/internal/model"
)

// PriceMarker receives every parsed tick, e.g. a paper executor that fills
// at the last seen price.
type PriceMarker interface {
	MarkPrice(symbol string, price float64)
}

type instance struct {
	mu sync.Mutex
	s  Strategy
}

// Engine manages registered strategies and routes feed updates to them.
// Each instance is guarded by its own mutex, so instances for different
// symbols run in parallel while one instance never sees overlapping calls.
type Engine struct {
	mu       sync.RWMutex
	all      []*instance
	bySymbol map[string][]*instance
	laneBuf  int
	router   *bus.Router
	log      *zap.Logger
	now      func() time.Time

	// Marker, if set, is fed every parsed tick before strategies see it.
	Marker PriceMarker

	// Hooks are optional metric callbacks.
	Hooks Hooks
}

// NewEngine creates a strategy engine. laneBufferSize bounds the per-symbol
// queue used by Run.
func NewEngine(laneBufferSize int, log *zap.Logger) *Engine {
	return &Engine{
		bySymbol: make(map[string][]*instance),
		laneBuf:  laneBufferSize,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	inst := &instance{s: s}
	sym := model.NormalizeSymbol(s.Symbol())
	e.mu.Lock()
	e.all = append(e.all, inst)
	e.bySymbol[sym] = append(e.bySymbol[sym], inst)
	e.mu.Unlock()
	e.log.Info("strategy registered", zap.String("strategy", s.Name()), zap.String("symbol", sym))
}

// Symbols returns the registered symbols in sorted order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.bySymbol))
	for sym := range e.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Deliver parses one raw price update and hands it to every instance
// trading symbol. A malformed price is logged, counted and dropped; the
// returned error wraps model.ErrParse.
func (e *Engine) Deliver(ctx context.Context, symbol string, raw any) error {
	return e.DeliverTick(ctx, model.RawTick{Symbol: symbol, Price: raw})
}

// DeliverTick is Deliver for a RawTick. A zero TS is replaced by the
// current time.
func (e *Engine) DeliverTick(ctx context.Context, raw model.RawTick) error {
	sym := model.NormalizeSymbol(raw.Symbol)
	price, err := model.ParsePrice(raw.Price)
	if err != nil {
		e.log.Warn("dropping unparseable tick", zap.String("symbol", sym), zap.Any("price", raw.Price), zap.Error(err))
		e.Hooks.parseError(sym)
		return err
	}
	ts := raw.TS
	if ts.IsZero() {
		ts = e.now()
	}
	tick := model.Tick{Symbol: sym, Price: price, TS: ts}
	e.Hooks.tick(sym)

	if e.Marker != nil {
		e.Marker.MarkPrice(sym, price)
	}

	e.mu.RLock()
	targets := e.bySymbol[sym]
	e.mu.RUnlock()
	for _, inst := range targets {
		inst.mu.Lock()
		inst.s.OnPriceUpdate(ctx, tick)
		inst.mu.Unlock()
	}
	return nil
}

// DeliverRates delivers a batch of symbol -> price updates, as pushed by a
// rates feed. Symbols are processed in sorted order. Malformed entries are
// dropped individually.
func (e *Engine) DeliverRates(ctx context.Context, rates map[string]any) {
	syms := make([]string, 0, len(rates))
	for sym := range rates {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	ts := e.now()
	for _, sym := range syms {
		_ = e.DeliverTick(ctx, model.RawTick{Symbol: sym, Price: rates[sym], TS: ts})
	}
}

// Run consumes raw ticks and delivers them through a per-symbol router.
// Blocks until ctx is cancelled or ticks is closed.
func (e *Engine) Run(ctx context.Context, ticks <-chan model.RawTick) {
	r := bus.NewRouter(e.laneBuf, func(ctx context.Context, t model.RawTick) {
		_ = e.DeliverTick(ctx, t)
	}, e.log)
	r.OnDrop = e.Hooks.OnDrop

	e.mu.Lock()
	e.router = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.router = nil
		e.mu.Unlock()
	}()
	r.Run(ctx, ticks)
}

// LaneStats reports the queue depth of every symbol lane while Run is
// active, nil otherwise.
func (e *Engine) LaneStats() map[string]bus.ChannelStat {
	e.mu.RLock()
	r := e.router
	e.mu.RUnlock()
	if r == nil {
		return nil
	}
	return r.LaneStats()
}

// Statuses returns the state of every registered strategy that implements
// Reporter, in registration order.
func (e *Engine) Statuses() []Status {
	e.mu.RLock()
	all := make([]*instance, len(e.all))
	copy(all, e.all)
	e.mu.RUnlock()

	out := make([]Status, 0, len(all))
	for _, inst := range all {
		rep, ok := inst.s.(Reporter)
		if !ok {
			continue
		}
		inst.mu.Lock()
		out = append(out, rep.Status())
		inst.mu.Unlock()
	}
	return out
}
