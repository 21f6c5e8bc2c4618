// Package api serves strategy state over HTTP and streams candle and fill
// events to websocket clients.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/execution"
	"tradecore/internal/logger"
	"tradecore/internal/model"
	"tradecore/internal/strategy"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// StatusSource reports every running strategy, e.g. *strategy.Engine.
type StatusSource interface {
	Statuses() []strategy.Status
}

// TradeSource lists journaled fills, e.g. *execution.Journal.
type TradeSource interface {
	Trades(limit int) ([]execution.TradeRecord, error)
}

// Deps are the optional data sources behind the API. Routes whose source
// is nil are not registered.
type Deps struct {
	Strategies StatusSource
	Trades     TradeSource
	Candles    model.HistoryLoader
	Hub        *Hub
	Logger     *zap.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// NewRouter sets up HTTP routes for the API server:
//
//	GET /api/v1/health
//	GET /api/v1/strategies
//	GET /api/v1/trades?limit=N
//	GET /api/v1/candles?symbol=btc-usd&interval=1h&limit=N
//	WS  /api/v1/stream?symbols=btc-usd,eth-usd&since=SEQ
func NewRouter(d Deps) *http.ServeMux {
	log := logger.OrNop(d.Logger)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if d.Strategies != nil {
		mux.HandleFunc("/api/v1/strategies", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, d.Strategies.Statuses())
		})
	}

	if d.Trades != nil {
		mux.HandleFunc("/api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
			limit, err := parseLimit(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			trades, err := d.Trades.Trades(limit)
			if err != nil {
				log.Error("list trades", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "trades unavailable")
				return
			}
			if trades == nil {
				trades = []execution.TradeRecord{}
			}
			writeJSON(w, http.StatusOK, trades)
		})
	}

	if d.Candles != nil {
		mux.HandleFunc("/api/v1/candles", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			pair, err := model.ParsePair(q.Get("symbol"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			interval := time.Hour
			if s := q.Get("interval"); s != "" {
				if interval, err = time.ParseDuration(s); err != nil || interval <= 0 {
					writeError(w, http.StatusBadRequest, "invalid interval")
					return
				}
			}
			limit, err := parseLimit(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
			defer cancel()
			candles, err := d.Candles.LoadHistory(ctx, pair, interval, limit)
			if err != nil {
				log.Error("load candles", zap.String("symbol", pair.Symbol), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "candles unavailable")
				return
			}
			if candles == nil {
				candles = []model.Candle{}
			}
			writeJSON(w, http.StatusOK, candles)
		})
	}

	if d.Hub != nil {
		mux.HandleFunc("/api/v1/stream", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var since int64
			if s := q.Get("since"); s != "" {
				n, err := strconv.ParseInt(s, 10, 64)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid since")
					return
				}
				since = n
			}
			var symbols map[string]bool
			if s := q.Get("symbols"); s != "" {
				symbols = make(map[string]bool)
				for _, sym := range strings.Split(s, ",") {
					symbols[model.NormalizeSymbol(sym)] = true
				}
			}

			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				log.Warn("ws upgrade error", zap.Error(err))
				return
			}
			d.Hub.attach(conn, symbols, since)
		})
	}

	return mux
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errInvalidLimit
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

var errInvalidLimit = errors.New("invalid limit")

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
