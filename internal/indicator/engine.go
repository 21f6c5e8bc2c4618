package indicator

import (
	"time"

	"github.com/pkg/errors"

	"tradecore/internal/model"
	"tradecore/internal/ringbuf"
)

// Config sizes the candle history and indicator periods.
type Config struct {
	HistorySize int // candles retained, oldest evicted first
	EMALength   int // EMA span on closes
	ADXLength   int // Wilder length for +DI/-DI/DX/ADX
	ATRLength   int // Wilder length for the ATR used in gates and levels
	WarmupExtra int // extra candles beyond EMALength before values are trusted
}

// DefaultConfig matches the ADX/EMA-200 trend strategy defaults.
func DefaultConfig() Config {
	return Config{
		HistorySize: 500,
		EMALength:   200,
		ADXLength:   14,
		ATRLength:   14,
		WarmupExtra: 20,
	}
}

// MinHistory is the number of candles required before Snapshot is defined.
func (c Config) MinHistory() int { return c.EMALength + c.WarmupExtra }

// BackfillSize is the number of candles to request from a history loader so
// that EMA/ADX are past their transient at the first live evaluation.
func (c Config) BackfillSize() int { return c.EMALength + 50 }

// Snapshot is the indicator state computed against the newest candle.
type Snapshot struct {
	Close   float64   `json:"close"`
	EMA     float64   `json:"ema"`
	ATR     float64   `json:"atr"`
	ADX     float64   `json:"adx"`
	PlusDI  float64   `json:"plus_di"`
	MinusDI float64   `json:"minus_di"`
	Candles int       `json:"candles"`
	TS      time.Time `json:"ts"` // Start of the candle this snapshot was computed against
}

// Engine owns a bounded, time-ordered candle history and recomputes the
// exponential indicator set over it on demand.
// Not safe for concurrent use; each strategy instance owns one.
type Engine struct {
	cfg     Config
	history *ringbuf.Ring[model.Candle]

	// Optional metrics hook, called with the duration of each Snapshot.
	OnCompute func(d time.Duration)
}

// NewEngine creates an indicator engine. Zero config fields take defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.EMALength <= 0 {
		cfg.EMALength = def.EMALength
	}
	if cfg.ADXLength <= 0 {
		cfg.ADXLength = def.ADXLength
	}
	if cfg.ATRLength <= 0 {
		cfg.ATRLength = def.ATRLength
	}
	if cfg.WarmupExtra < 0 {
		cfg.WarmupExtra = 0
	}
	return &Engine{
		cfg:     cfg,
		history: ringbuf.New[model.Candle](cfg.HistorySize),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Append adds a closed candle. Candles starting before the newest retained
// candle are rejected to keep the history ordered.
func (e *Engine) Append(c model.Candle) error {
	if prev, ok := e.history.Last(); ok && c.Start.Before(prev.Start) {
		return errors.Errorf("indicator: candle at %s precedes history tail %s",
			c.Start.Format(time.RFC3339), prev.Start.Format(time.RFC3339))
	}
	e.history.Push(c)
	return nil
}

// Seed appends backfilled candles in order and returns how many were kept.
func (e *Engine) Seed(candles []model.Candle) int {
	kept := 0
	for _, c := range candles {
		if err := e.Append(c); err == nil {
			kept++
		}
	}
	return kept
}

// Len returns the number of retained candles.
func (e *Engine) Len() int { return e.history.Len() }

// Ready reports whether enough history exists for a trusted snapshot.
func (e *Engine) Ready() bool { return e.history.Len() >= e.cfg.MinHistory() }

// Evicted returns how many candles have fallen out of the bounded history.
func (e *Engine) Evicted() uint64 { return e.history.Evicted() }

// History returns a copy of the retained candles, oldest first.
func (e *Engine) History() []model.Candle { return e.history.Slice() }

// Snapshot computes EMA, ATR and ADX for the newest candle. It returns
// model.ErrIndicatorUndefined while the history is shorter than MinHistory.
func (e *Engine) Snapshot() (Snapshot, error) {
	if !e.Ready() {
		return Snapshot{}, errors.Wrapf(model.ErrIndicatorUndefined,
			"have %d/%d candles", e.history.Len(), e.cfg.MinHistory())
	}
	start := time.Now()

	candles := e.history.Slice()
	adx := ADX(candles, e.cfg.ADXLength)
	newest := candles[len(candles)-1]

	snap := Snapshot{
		Close:   newest.Close,
		EMA:     last(EMA(Closes(candles), e.cfg.EMALength)),
		ATR:     last(ATR(candles, e.cfg.ATRLength)),
		ADX:     last(adx.ADX),
		PlusDI:  last(adx.PlusDI),
		MinusDI: last(adx.MinusDI),
		Candles: len(candles),
		TS:      newest.Start,
	}

	if e.OnCompute != nil {
		e.OnCompute(time.Since(start))
	}
	return snap, nil
}
