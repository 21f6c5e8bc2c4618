// Package metrics exposes Prometheus metrics and a health endpoint for the
// strategy daemon.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tradecore/internal/marketdata/bus"
	"tradecore/internal/model"
	"tradecore/internal/strategy"
)

// Metrics holds all Prometheus metrics for the strategy daemon.
// Every method is safe to call on a nil *Metrics.
type Metrics struct {
	TicksTotal   *prometheus.CounterVec // labels: symbol
	ParseErrors  *prometheus.CounterVec // labels: symbol
	DroppedTicks *prometheus.CounterVec // labels: symbol
	LaneFill     *prometheus.GaugeVec   // labels: symbol
	CandlesTotal *prometheus.CounterVec // labels: symbol, interval
	WSReconnects prometheus.Counter

	// Indicator engine metrics
	IndicatorComputeDur prometheus.Histogram

	// Decision metrics
	GateRejects  *prometheus.CounterVec // labels: strategy, gate
	OrdersTotal  *prometheus.CounterVec // labels: strategy, side
	FillSlippage *prometheus.GaugeVec   // labels: strategy, side
	Position     *prometheus.GaugeVec   // labels: strategy (0=flat, 1=long)
	Balance      *prometheus.GaugeVec   // labels: strategy, currency
	RealizedPnL  *prometheus.GaugeVec   // labels: strategy

	// Storage
	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram

	// Circuit breaker metrics
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	RedisFlushedWrites       prometheus.Counter
}

// New creates all metrics and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_ticks_total",
			Help: "Parsed ticks delivered to strategies",
		}, []string{"symbol"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_parse_errors_total",
			Help: "Ticks rejected because the price could not be parsed",
		}, []string{"symbol"}),
		DroppedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_dropped_ticks_total",
			Help: "Ticks dropped because a symbol lane was full",
		}, []string{"symbol"}),
		LaneFill: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_lane_saturation",
			Help: "Fraction of a symbol lane buffer in use",
		}, []string{"symbol"}),
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_candles_total",
			Help: "Candles closed (by symbol and interval)",
		}, []string{"symbol", "interval"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradecore_indicator_compute_duration_seconds",
			Help:    "Indicator snapshot recompute latency per closed candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),

		GateRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_gate_rejects_total",
			Help: "Entry signals rejected by a gate",
		}, []string{"strategy", "gate"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_orders_total",
			Help: "Executed order legs",
		}, []string{"strategy", "side"}),
		FillSlippage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_fill_slippage",
			Help: "Executed minus signal price of the last fill",
		}, []string{"strategy", "side"}),
		Position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_position_state",
			Help: "Position state (0=flat, 1=long)",
		}, []string{"strategy"}),
		Balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_wallet_balance",
			Help: "Virtual wallet balance per currency",
		}, []string{"strategy", "currency"}),
		RealizedPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_realized_pnl",
			Help: "Realized profit and loss in quote currency",
		}, []string{"strategy"}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradecore_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradecore_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradecore_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),
		RedisFlushedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_redis_flushed_writes_total",
			Help: "Buffered writes replayed after the circuit closed",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.ParseErrors,
		m.DroppedTicks,
		m.LaneFill,
		m.CandlesTotal,
		m.WSReconnects,
		m.IndicatorComputeDur,
		m.GateRejects,
		m.OrdersTotal,
		m.FillSlippage,
		m.Position,
		m.Balance,
		m.RealizedPnL,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.RedisFlushedWrites,
	)

	return m
}

// StrategyHooks returns engine and strategy callbacks feeding these metrics.
func (m *Metrics) StrategyHooks() strategy.Hooks {
	if m == nil {
		return strategy.Hooks{}
	}
	return strategy.Hooks{
		OnTick:       func(symbol string) { m.TicksTotal.WithLabelValues(symbol).Inc() },
		OnParseError: func(symbol string) { m.ParseErrors.WithLabelValues(symbol).Inc() },
		OnDrop:       func(symbol string) { m.DroppedTicks.WithLabelValues(symbol).Inc() },
		OnGateReject: func(name, gate string) { m.GateRejects.WithLabelValues(name, gate).Inc() },
		OnCompute:    func(d time.Duration) { m.IndicatorComputeDur.Observe(d.Seconds()) },
	}
}

// CandleClosed implements model.Sink.
func (m *Metrics) CandleClosed(symbol string, interval time.Duration, _ model.Candle) {
	if m == nil {
		return
	}
	m.CandlesTotal.WithLabelValues(symbol, strconv.FormatInt(int64(interval/time.Second), 10)+"s").Inc()
}

// Filled implements model.Sink.
func (m *Metrics) Filled(f model.Fill) {
	if m == nil {
		return
	}
	side := string(f.Side)
	m.OrdersTotal.WithLabelValues(f.Strategy, side).Inc()
	m.FillSlippage.WithLabelValues(f.Strategy, side).Set(f.Slippage())
}

// ObserveStatus refreshes the position, balance and P&L gauges of one
// strategy instance.
func (m *Metrics) ObserveStatus(s strategy.Status) {
	if m == nil {
		return
	}
	m.Position.WithLabelValues(s.Name).Set(float64(s.Position.State))
	for cur, bal := range s.Balances {
		m.Balance.WithLabelValues(s.Name, cur).Set(bal)
	}
	m.RealizedPnL.WithLabelValues(s.Name).Set(s.RealizedPnL)
}

// ObserveLanes sets the saturation gauge of each symbol lane.
func (m *Metrics) ObserveLanes(stats map[string]bus.ChannelStat) {
	if m == nil {
		return
	}
	for sym, st := range stats {
		if st.Cap > 0 {
			m.LaneFill.WithLabelValues(sym).Set(float64(st.Len) / float64(st.Cap))
		}
	}
}

// Reconnected counts a websocket reconnect.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.WSReconnects.Inc()
}

// SQLiteCommitted observes one batch commit.
func (m *Metrics) SQLiteCommitted(d time.Duration) {
	if m == nil {
		return
	}
	m.SQLiteCommitDur.Observe(d.Seconds())
}

// RedisWritten observes one Redis write.
func (m *Metrics) RedisWritten(d time.Duration) {
	if m == nil {
		return
	}
	m.RedisWriteDur.Observe(d.Seconds())
}

// RedisBuffered counts a write held back by the circuit breaker.
func (m *Metrics) RedisBuffered() {
	if m == nil {
		return
	}
	m.RedisBufferedWrites.Inc()
}

// RedisFlushed counts replayed writes.
func (m *Metrics) RedisFlushed(n int) {
	if m == nil {
		return
	}
	m.RedisFlushedWrites.Add(float64(n))
}

// CircuitState records a breaker transition. state follows the breaker's
// numbering (0=closed, 1=open, 2=half-open); entering open counts as a trip.
func (m *Metrics) CircuitState(state int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}
