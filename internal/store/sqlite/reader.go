package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"tradecore/internal/model"
)

// Reader provides read-only access to stored candles for backfill and replay.
// It implements model.HistoryLoader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema is created if
// missing so a fresh path reads as empty.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite schema")
	}
	return &Reader{db: db}, nil
}

// ReadCandles returns candles for a series starting after `after`, ordered
// by start ascending for correct replay order.
func (r *Reader) ReadCandles(ctx context.Context, symbol string, interval time.Duration, after time.Time) ([]model.Candle, error) {
	afterTS := int64(-1 << 62)
	if !after.IsZero() {
		afterTS = after.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close
		FROM candles
		WHERE symbol = ? AND interval_sec = ? AND ts > ?
		ORDER BY ts ASC
	`, model.NormalizeSymbol(symbol), int64(interval/time.Second), afterTS)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query candles")
	}
	defer rows.Close()
	return scanCandles(rows)
}

// LoadHistory returns the newest limit candles of the series, oldest first.
func (r *Reader) LoadHistory(ctx context.Context, pair model.Pair, interval time.Duration, limit int) ([]model.Candle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close FROM (
			SELECT ts, open, high, low, close
			FROM candles
			WHERE symbol = ? AND interval_sec = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, pair.Symbol, int64(interval/time.Second), limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite query history")
	}
	defer rows.Close()
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]model.Candle, error) {
	var candles []model.Candle
	for rows.Next() {
		var (
			c      model.Candle
			tsUnix int64
		)
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, errors.Wrap(err, "sqlite scan candles")
		}
		c.Start = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
