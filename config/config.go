// Package config loads the strategy daemon configuration from a YAML file
// with TRADECORE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"tradecore/internal/backfill"
	"tradecore/internal/execution"
	"tradecore/internal/logger"
	"tradecore/internal/marketdata/ws"
	"tradecore/internal/model"
	"tradecore/internal/strategy"
)

// EnvPrefix prefixes every environment override, e.g. TRADECORE_LOG_LEVEL.
const EnvPrefix = "TRADECORE"

// Config holds all application configuration.
type Config struct {
	Log      logger.Config  `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Notify   NotifyConfig   `mapstructure:"notify"`

	Strategies []StrategyConfig `mapstructure:"strategies" validate:"required,min=1,dive"`

	// StatusInterval is how often the budget status report runs.
	StatusInterval time.Duration `mapstructure:"status_interval" validate:"gt=0"`
	// LaneBuffer is the per-symbol tick queue length.
	LaneBuffer int `mapstructure:"lane_buffer" validate:"gt=0"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`

	// API mounts the REST and event stream routes on the same listener.
	API          bool `mapstructure:"api"`
	StreamReplay int  `mapstructure:"stream_replay" validate:"gte=0"`
}

// FeedConfig selects where ticks come from.
type FeedConfig struct {
	Source string            `mapstructure:"source" validate:"oneof=ws redis"`
	WS     ws.Config         `mapstructure:"ws"`
	Redis  RedisStreamConfig `mapstructure:"redis"`
}

// RedisStreamConfig names the tick stream consumed when Source is "redis".
// Connection settings come from the top-level Redis section.
type RedisStreamConfig struct {
	Stream   string `mapstructure:"stream"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

type ExecutorConfig struct {
	Kind        string                      `mapstructure:"kind" validate:"oneof=paper transaction"`
	SlippageBps int64                       `mapstructure:"slippage_bps" validate:"gte=0"`
	Transaction execution.TransactionConfig `mapstructure:"transaction"`
	JournalPath string                      `mapstructure:"journal_path"` // sqlite trade journal; empty disables
}

type BackfillConfig struct {
	UseStore   bool                   `mapstructure:"use_store"` // try the sqlite candle store first
	UseBinance bool                   `mapstructure:"use_binance"`
	Binance    backfill.BinanceConfig `mapstructure:"binance"`
}

type SQLiteConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path" validate:"required_if=Enabled true"`
	QueueSize int    `mapstructure:"queue_size" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"gte=0"`
	QueueSize    int           `mapstructure:"queue_size" validate:"gte=0"`
	MaxBuffer    int           `mapstructure:"max_buffer" validate:"gte=0"`
	MaxFailures  int           `mapstructure:"max_failures" validate:"gt=0"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout" validate:"gt=0"`
}

// NotifyConfig routes fill alerts. Each channel is on when its address is set.
type NotifyConfig struct {
	WebhookURL       string `mapstructure:"webhook_url" validate:"omitempty,url"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id" validate:"required_with=TelegramBotToken"`
	QueueSize        int    `mapstructure:"queue_size" validate:"gte=0"`
}

// Enabled reports whether any alert channel is configured.
func (n NotifyConfig) Enabled() bool {
	return n.WebhookURL != "" || n.TelegramBotToken != ""
}

// StrategyConfig is one strategy instance. Everything besides kind is
// decoded over the kind's default parameters.
type StrategyConfig struct {
	Kind   string                 `mapstructure:"kind" validate:"oneof=sma_crossover adx_trend"`
	Params map[string]interface{} `mapstructure:",remain"`
}

// Crossover decodes the instance as SMA crossover parameters.
func (s StrategyConfig) Crossover() (strategy.CrossoverParams, error) {
	p := strategy.DefaultCrossoverParams()
	if err := decodeParams(s.Params, &p); err != nil {
		return p, errors.Wrap(err, "sma_crossover params")
	}
	if _, ok := s.Params["name"]; !ok {
		p.Name = defaultName(s.Kind, p.Symbol)
	}
	return p, p.Validate()
}

// Trend decodes the instance as ADX trend parameters.
func (s StrategyConfig) Trend() (strategy.TrendParams, error) {
	p := strategy.DefaultTrendParams()
	if err := decodeParams(s.Params, &p); err != nil {
		return p, errors.Wrap(err, "adx_trend params")
	}
	if _, ok := s.Params["name"]; !ok {
		p.Name = defaultName(s.Kind, p.Symbol)
	}
	return p, p.Validate()
}

func defaultName(kind, symbol string) string {
	return kind + ":" + model.NormalizeSymbol(symbol)
}

func decodeParams(in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

var validate = validator.New()

// Validate checks struct tags, cross-field requirements and every
// strategy's decoded parameters.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.Feed.Source == "ws" && c.Feed.WS.URL == "" {
		return errors.New("config: feed.ws.url is required for the ws feed")
	}
	if c.Feed.Source == "redis" && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required for the redis feed")
	}
	if c.Executor.Kind == "transaction" && c.Executor.Transaction.BaseURL == "" {
		return errors.New("config: executor.transaction.base_url is required")
	}

	names := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		var (
			name string
			err  error
		)
		switch s.Kind {
		case strategy.KindSMACrossover:
			var p strategy.CrossoverParams
			p, err = s.Crossover()
			name = p.Name
		case strategy.KindADXTrend:
			var p strategy.TrendParams
			p, err = s.Trend()
			name = p.Name
		}
		if err != nil {
			return errors.Wrapf(err, "config: strategies[%d]", i)
		}
		if names[name] {
			return errors.Errorf("config: strategies[%d]: duplicate name %q", i, name)
		}
		names[name] = true
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.api", true)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.telegram_bot_token", "")
	v.SetDefault("notify.telegram_chat_id", "")
	v.SetDefault("notify.queue_size", 64)
	v.SetDefault("metrics.stream_replay", 500)

	v.SetDefault("feed.source", "ws")
	v.SetDefault("feed.ws.reconnect_delay", time.Second)
	v.SetDefault("feed.ws.max_backoff", 30*time.Second)
	v.SetDefault("feed.redis.stream", "ticks")
	v.SetDefault("feed.redis.group", "tradecore")
	v.SetDefault("feed.redis.consumer", hostname())

	v.SetDefault("executor.kind", "paper")
	v.SetDefault("executor.slippage_bps", 0)
	v.SetDefault("executor.transaction.funding_currency", "USD")
	v.SetDefault("executor.transaction.timeout", 10*time.Second)

	v.SetDefault("backfill.use_store", true)
	v.SetDefault("backfill.use_binance", true)
	v.SetDefault("backfill.binance.base_url", "https://api.binance.com")
	v.SetDefault("backfill.binance.timeout", 10*time.Second)

	v.SetDefault("sqlite.enabled", false)
	v.SetDefault("sqlite.path", "data/candles.db")
	v.SetDefault("sqlite.queue_size", 1024)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.queue_size", 1024)
	v.SetDefault("redis.max_buffer", 10000)
	v.SetDefault("redis.max_failures", 5)
	v.SetDefault("redis.reset_timeout", 10*time.Second)

	v.SetDefault("status_interval", time.Minute)
	v.SetDefault("lane_buffer", 256)
}

// Load reads configuration from path (or $TRADECORE_CONFIG, or config.yaml
// in the working directory or ./config), applies environment overrides and
// validates the result. A missing default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Support environment variables with dot notation (e.g., TRADECORE_LOG_LEVEL)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return h
}
