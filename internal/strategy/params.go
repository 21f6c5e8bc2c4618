package strategy

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Strategy kinds as named in configuration.
const (
	KindSMACrossover = "sma_crossover"
	KindADXTrend     = "adx_trend"
)

var validate = validator.New()

// CrossoverParams configures an SMACrossover instance.
type CrossoverParams struct {
	Name       string             `mapstructure:"name" validate:"required"`
	Symbol     string             `mapstructure:"symbol" validate:"required"`
	WindowSize int                `mapstructure:"window_size" validate:"gte=1"`
	Quantity   float64            `mapstructure:"quantity" validate:"gt=0"`
	Balances   map[string]float64 `mapstructure:"balances" validate:"dive,gte=0"`
}

// DefaultCrossoverParams returns a 200-tick window trading 0.1 units.
func DefaultCrossoverParams() CrossoverParams {
	return CrossoverParams{
		Name:       KindSMACrossover,
		WindowSize: 200,
		Quantity:   0.1,
	}
}

// Validate checks field ranges.
func (p CrossoverParams) Validate() error {
	return errors.Wrap(validate.Struct(p), "sma_crossover params")
}

// TrendParams configures an ADXTrend instance.
type TrendParams struct {
	Name     string             `mapstructure:"name" validate:"required"`
	Symbol   string             `mapstructure:"symbol" validate:"required"`
	Balances map[string]float64 `mapstructure:"balances" validate:"dive,gte=0"`

	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
	HistorySize int           `mapstructure:"history_size" validate:"gt=0"`
	EMALength   int           `mapstructure:"ema_length" validate:"gt=0"`
	ADXLength   int           `mapstructure:"adx_length" validate:"gt=0"`
	ATRLength   int           `mapstructure:"atr_length" validate:"gt=0"`
	WarmupExtra int           `mapstructure:"warmup_extra" validate:"gte=0"`

	ADXThreshold float64 `mapstructure:"adx_threshold" validate:"gte=0,lte=100"`
	Risk         float64 `mapstructure:"risk" validate:"gt=0,lte=1"`
	SpreadPct    float64 `mapstructure:"spread_pct" validate:"gte=0,lt=1"`
	SafetyFactor float64 `mapstructure:"safety_factor" validate:"gte=0"`
	SLMult       float64 `mapstructure:"sl_mult" validate:"gt=0"`
	TPMult       float64 `mapstructure:"tp_mult" validate:"gt=0"`

	// Backfill requests EMALength+50 candles from the history loader at start.
	Backfill bool `mapstructure:"backfill"`
}

// DefaultTrendParams returns the hourly ADX/EMA-200 configuration.
func DefaultTrendParams() TrendParams {
	return TrendParams{
		Name:         KindADXTrend,
		Interval:     time.Hour,
		HistorySize:  500,
		EMALength:    200,
		ADXLength:    14,
		ATRLength:    14,
		WarmupExtra:  20,
		ADXThreshold: 25,
		Risk:         0.04,
		SpreadPct:    0.0025,
		SafetyFactor: 1.1,
		SLMult:       1.5,
		TPMult:       5.5,
		Backfill:     true,
	}
}

// Validate checks field ranges and that the history can hold a full warm-up.
func (p TrendParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Wrap(err, "adx_trend params")
	}
	if need := p.EMALength + p.WarmupExtra; p.HistorySize < need {
		return errors.Errorf("adx_trend params: history_size %d below warm-up requirement %d", p.HistorySize, need)
	}
	return nil
}
