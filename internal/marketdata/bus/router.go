package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// Handler processes ticks for one symbol. It is never called concurrently for
// the same symbol.
type Handler func(ctx context.Context, tick model.RawTick)

// Router reads a single tick stream and dispatches each tick to a per-symbol
// lane served by its own goroutine. Ticks for one symbol are delivered serially
// and in order; different symbols proceed in parallel. If a lane is full the
// tick is dropped so a slow symbol cannot block the feed.
type Router struct {
	mu      sync.RWMutex
	lanes   map[string]chan model.RawTick
	bufSize int
	handler Handler
	log     *zap.Logger
	wg      sync.WaitGroup

	// OnDrop is called when a tick is dropped because its lane is full.
	OnDrop func(symbol string)
}

// NewRouter creates a Router with the given lane buffer size.
func NewRouter(laneBufferSize int, h Handler, log *zap.Logger) *Router {
	if laneBufferSize <= 0 {
		laneBufferSize = 1
	}
	return &Router{
		lanes:   make(map[string]chan model.RawTick),
		bufSize: laneBufferSize,
		handler: h,
		log:     logger.OrNop(log),
	}
}

// Run reads from input and routes ticks to their symbol lanes.
// Blocks until ctx is cancelled or input is closed, then drains every lane
// and waits for its goroutine to exit.
func (r *Router) Run(ctx context.Context, input <-chan model.RawTick) {
	defer func() {
		r.mu.Lock()
		for sym, ch := range r.lanes {
			close(ch)
			delete(r.lanes, sym)
		}
		r.mu.Unlock()
		r.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-input:
			if !ok {
				return
			}
			sym := model.NormalizeSymbol(tick.Symbol)
			tick.Symbol = sym
			lane := r.lane(ctx, sym)
			select {
			case lane <- tick:
			default:
				if r.OnDrop != nil {
					r.OnDrop(sym)
				} else {
					r.log.Warn("lane full, dropping tick", zap.String("symbol", sym))
				}
			}
		}
	}
}

func (r *Router) lane(ctx context.Context, sym string) chan model.RawTick {
	r.mu.RLock()
	ch, ok := r.lanes[sym]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok = r.lanes[sym]; ok {
		return ch
	}
	ch = make(chan model.RawTick, r.bufSize)
	r.lanes[sym] = ch
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for t := range ch {
			r.handler(ctx, t)
		}
	}()
	r.log.Debug("lane started", zap.String("symbol", sym))
	return ch
}

// ChannelStat reports (length, capacity) of a lane.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	Len int
	Cap int
}

// LaneStats returns saturation per symbol lane.
func (r *Router) LaneStats() map[string]ChannelStat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[string]ChannelStat, len(r.lanes))
	for sym, ch := range r.lanes {
		stats[sym] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
