package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

// ConsumerConfig configures the Redis tick consumer.
type ConsumerConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string // tick stream, e.g. "ticks"
	Group    string // consumer group name, e.g. "tradecore"
	Consumer string // unique consumer name, e.g. hostname
}

// TickConsumer reads raw price updates from a Redis Stream via a consumer
// group. Each entry carries "symbol", "price" and an optional "ts" field
// (unix milliseconds). Prices are passed through unparsed so malformed
// values are rejected, logged and counted by the strategy engine.
type TickConsumer struct {
	client *goredis.Client
	cfg    ConsumerConfig
	log    *zap.Logger
}

// NewTickConsumer creates a consumer and pings the server.
func NewTickConsumer(cfg ConsumerConfig, log *zap.Logger) (*TickConsumer, error) {
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

	if cfg.Stream == "" {
		cfg.Stream = "ticks"
	}
	if cfg.Group == "" {
		cfg.Group = "tradecore"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}

	log = logger.OrNop(log)
	log.Info("connected tick consumer",
		zap.String("addr", cfg.Addr),
		zap.String("stream", cfg.Stream),
		zap.String("group", cfg.Group),
		zap.String("consumer", cfg.Consumer),
	)
	return &TickConsumer{client: client, cfg: cfg, log: log}, nil
}

// EnsureGroup creates the consumer group if it doesn't exist.
// Uses "$" as start ID (only new messages) for fresh groups.
func (c *TickConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return errors.Wrapf(err, "xgroup create %s", c.cfg.Stream)
	}
	return nil
}

// Consume blocks on XREADGROUP and sends ticks to out, acknowledging each
// entry once handed off. Returns when ctx is cancelled.
func (c *TickConsumer) Consume(ctx context.Context, out chan<- model.RawTick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			c.log.Warn("xreadgroup failed", zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				tick, ok := parseTickValues(msg.Values)
				if !ok {
					c.log.Warn("skipping malformed tick entry", zap.String("id", msg.ID))
					// ACK even on bad message to avoid poison pill
					c.client.XAck(ctx, stream.Stream, c.cfg.Group, msg.ID)
					continue
				}

				select {
				case out <- tick:
				case <-ctx.Done():
					return ctx.Err()
				}
				c.client.XAck(ctx, stream.Stream, c.cfg.Group, msg.ID)
			}
		}
	}
}

// parseTickValues extracts a RawTick from stream entry fields. Entries
// without a symbol or price are malformed.
func parseTickValues(values map[string]interface{}) (model.RawTick, bool) {
	sym, _ := values["symbol"].(string)
	price, ok := values["price"]
	if sym == "" || !ok {
		return model.RawTick{}, false
	}
	t := model.RawTick{Symbol: sym, Price: price}
	if raw, ok := values["ts"].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			t.TS = time.UnixMilli(ms).UTC()
		}
	}
	return t, true
}

// Close closes the Redis client.
func (c *TickConsumer) Close() error {
	return c.client.Close()
}
