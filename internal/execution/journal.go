package execution

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// Journal persists trade fills to SQLite for analysis and audit.
// It implements model.Sink; candle events are ignored.
type Journal struct {
	mu  sync.Mutex
	db  *sql.DB
	log *zap.Logger
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string, log *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		strategy    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		requested   REAL NOT NULL,
		amount      REAL NOT NULL,
		price       REAL NOT NULL,
		signal      REAL DEFAULT 0,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create journal schema")
	}

	log = logger.OrNop(log)
	log.Info("opened trade journal", zap.String("path", dbPath))
	return &Journal{db: db, log: log}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(f model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, strategy, symbol, side, requested, amount, price, signal, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID,
		f.Strategy,
		f.Symbol,
		string(f.Side),
		f.Requested,
		f.Amount,
		f.Price,
		f.Signal,
		f.Reason,
		f.TS.UTC().Format(time.RFC3339Nano),
	)
	return errors.Wrap(err, "insert fill")
}

// Filled implements model.Sink.
func (j *Journal) Filled(f model.Fill) {
	if err := j.RecordFill(f); err != nil {
		j.log.Error("journal write failed",
			zap.String("symbol", f.Symbol),
			zap.String("order_id", f.OrderID),
			zap.Error(err),
		)
	}
}

// CandleClosed implements model.Sink.
func (j *Journal) CandleClosed(string, time.Duration, model.Candle) {}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID        int64   `json:"id"`
	OrderID   string  `json:"order_id"`
	Strategy  string  `json:"strategy"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Requested float64 `json:"requested"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Signal    float64 `json:"signal"`
	Reason    string  `json:"reason"`
	FilledAt  string  `json:"filled_at"`
}

// Trades returns the last N trades, newest first.
func (j *Journal) Trades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, strategy, symbol, side, requested, amount, price, signal, reason, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Strategy, &t.Symbol, &t.Side,
			&t.Requested, &t.Amount, &t.Price, &t.Signal, &t.Reason, &t.FilledAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
