package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	defaultQueueSize  = 1024
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/candles.db"
	QueueSize int    // pending candles before CandleClosed starts dropping
}

// Row is a closed candle with its series key.
type Row struct {
	Symbol   string
	Interval time.Duration
	Candle   model.Candle
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It implements model.Sink: closed candles are queued without blocking and
// committed by Run.
type Writer struct {
	db    *sql.DB
	queue chan Row
	log   *zap.Logger

	// OnCommit is called with the duration of each committed batch.
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig, log *zap.Logger) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite schema")
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	log = logger.OrNop(log)
	log.Info("opened candle store", zap.String("path", cfg.DBPath))
	return &Writer{db: db, queue: make(chan Row, cfg.QueueSize), log: log}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol       TEXT    NOT NULL,
			interval_sec INTEGER NOT NULL,
			ts           INTEGER NOT NULL,
			open         REAL    NOT NULL,
			high         REAL    NOT NULL,
			low          REAL    NOT NULL,
			close        REAL    NOT NULL,
			PRIMARY KEY (symbol, interval_sec, ts)
		);
	`)
	return err
}

// CandleClosed implements model.Sink. The candle is dropped with a warning
// when the queue is full.
func (w *Writer) CandleClosed(symbol string, interval time.Duration, c model.Candle) {
	select {
	case w.queue <- Row{Symbol: symbol, Interval: interval, Candle: c}:
	default:
		w.log.Warn("candle queue full, dropping candle",
			zap.String("symbol", symbol),
			zap.Time("start", c.Start),
		)
	}
}

// Filled implements model.Sink.
func (w *Writer) Filled(model.Fill) {}

// Run drains queued candles and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	batch := make([]Row, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			w.log.Error("batch insert failed", zap.Int("rows", len(batch)), zap.Error(err))
		} else {
			d := time.Since(start)
			w.log.Debug("committed candles", zap.Int("rows", len(batch)), zap.Duration("took", d))
			if w.OnCommit != nil {
				w.OnCommit(d)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// drain what is already queued
			for {
				select {
				case r := <-w.queue:
					batch = append(batch, r)
				default:
					flush()
					return
				}
			}

		case r := <-w.queue:
			batch = append(batch, r)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteCandles inserts candles for one series synchronously.
func (w *Writer) WriteCandles(symbol string, interval time.Duration, candles []model.Candle) error {
	rows := make([]Row, len(candles))
	for i, c := range candles {
		rows[i] = Row{Symbol: symbol, Interval: interval, Candle: c}
	}
	return w.insertBatch(rows)
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(rows []Row) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, interval_sec, ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		c := r.Candle
		_, err := stmt.Exec(model.NormalizeSymbol(r.Symbol), int64(r.Interval/time.Second), c.Start.Unix(),
			c.Open, c.High, c.Low, c.Close)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastTimestamp returns the last stored candle start for a series.
// Returns the zero time if no candles exist.
func (w *Writer) LastTimestamp(symbol string, interval time.Duration) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND interval_sec = ?`,
		model.NormalizeSymbol(symbol), int64(interval/time.Second),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
