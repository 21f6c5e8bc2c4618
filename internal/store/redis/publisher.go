// Package redis publishes candles and fills to Redis Streams and consumes
// raw ticks from a Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

const (
	defaultLatestTTL   = 30 * time.Minute
	defaultQueueSize   = 1024
	defaultMaxBuffer   = 10000
	candleStreamLen    = 5000
	fillStreamLen      = 10000
	defaultPingTimeout = 5 * time.Second
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	QueueSize int // pending events before the Sink methods start dropping
	MaxBuffer int // writes retained while the circuit is open
}

// message is one pipelined write: XADD to Stream, optional SET of Latest,
// PUBLISH on Channel.
type message struct {
	Stream  string
	MaxLen  int64
	Latest  string
	Channel string
	Data    string
}

// Publisher writes closed candles and fills to Redis Streams. It implements
// model.Sink: events are queued without blocking and written by Run through
// a CircuitBreaker. While the circuit is open writes are buffered locally
// (oldest dropped first) and replayed when it closes.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	queue  chan message
	log    *zap.Logger

	// send performs one write; replaced in tests.
	send func(ctx context.Context, m message) error

	mu     sync.Mutex
	buffer []message
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()              // called when a write is buffered
	OnFlush  func(count int)     // called after buffered writes are replayed
	OnWrite  func(time.Duration) // called with the latency of each write
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher connects to Redis and pings the server.
func NewPublisher(cfg PublisherConfig, cb *CircuitBreaker, log *zap.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	p := newPublisher(cfg, cb, log)
	p.client = client
	p.send = p.pipeline
	p.log.Info("connected to redis", zap.String("addr", cfg.Addr))
	return p, nil
}

func newPublisher(cfg PublisherConfig, cb *CircuitBreaker, log *zap.Logger) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	return &Publisher{
		cb:     cb,
		queue:  make(chan message, cfg.QueueSize),
		log:    logger.OrNop(log),
		buffer: make([]message, 0, 256),
		maxBuf: cfg.MaxBuffer,
	}
}

type candleEvent struct {
	Symbol   string       `json:"symbol"`
	Interval int64        `json:"interval"` // seconds
	Candle   model.Candle `json:"candle"`
}

// CandleStream returns the stream key for a candle series,
// e.g. "candle:3600s:btc-usd".
func CandleStream(symbol string, interval time.Duration) string {
	return "candle:" + strconv.FormatInt(int64(interval/time.Second), 10) + "s:" + model.NormalizeSymbol(symbol)
}

// FillStream returns the stream key for fills of a symbol.
func FillStream(symbol string) string {
	return "fill:" + model.NormalizeSymbol(symbol)
}

// CandleClosed implements model.Sink.
func (p *Publisher) CandleClosed(symbol string, interval time.Duration, c model.Candle) {
	data, err := json.Marshal(candleEvent{Symbol: symbol, Interval: int64(interval / time.Second), Candle: c})
	if err != nil {
		p.log.Error("marshal candle", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	stream := CandleStream(symbol, interval)
	p.enqueue(message{
		Stream:  stream,
		MaxLen:  candleStreamLen,
		Latest:  stream + ":latest",
		Channel: "pub:" + stream,
		Data:    string(data),
	})
}

// Filled implements model.Sink.
func (p *Publisher) Filled(f model.Fill) {
	stream := FillStream(f.Symbol)
	p.enqueue(message{
		Stream:  stream,
		MaxLen:  fillStreamLen,
		Channel: "pub:" + stream,
		Data:    string(f.JSON()),
	})
}

func (p *Publisher) enqueue(m message) {
	select {
	case p.queue <- m:
	default:
		p.log.Warn("publish queue full, dropping event", zap.String("stream", m.Stream))
	}
}

// Run writes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			p.write(ctx, m)
		}
	}
}

func (p *Publisher) write(ctx context.Context, m message) {
	start := time.Now()
	err := p.cb.Execute(ctx, func(ctx context.Context) error { return p.send(ctx, m) })
	switch {
	case errors.Is(err, ErrCircuitOpen):
		p.bufferWrite(m)
	case err != nil:
		p.log.Warn("redis write failed", zap.String("stream", m.Stream), zap.Error(err))
		p.bufferWrite(m)
	default:
		if p.OnWrite != nil {
			p.OnWrite(time.Since(start))
		}
		if p.PendingCount() > 0 {
			p.flush(ctx)
		}
	}
}

func (p *Publisher) bufferWrite(m message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		// Buffer full: drop oldest
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, m)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays all buffered writes.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := p.buffer
	p.buffer = make([]message, 0, 256)
	p.mu.Unlock()

	flushed := 0
	for i, m := range toFlush {
		if err := p.send(ctx, m); err != nil {
			p.log.Warn("replay failed, re-buffering remainder", zap.Int("remaining", len(toFlush)-i), zap.Error(err))
			for _, rest := range toFlush[i:] {
				p.bufferWrite(rest)
			}
			break
		}
		flushed++
	}

	p.log.Info("flushed buffered writes", zap.Int("count", flushed))
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// pipeline performs XADD + SET + PUBLISH in one round trip.
func (p *Publisher) pipeline(ctx context.Context, m message) error {
	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: m.Stream,
		MaxLen: m.MaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": m.Data},
	})
	if m.Latest != "" {
		pipe.Set(ctx, m.Latest, m.Data, defaultLatestTTL)
	}
	pipe.Publish(ctx, m.Channel, m.Data)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
