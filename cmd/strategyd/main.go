// cmd/strategyd runs the configured strategies against a live price feed.
//
// Usage:
//
//	go run ./cmd/strategyd -config config/config.yaml
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tradecore/config"
	"tradecore/internal/api"
	"tradecore/internal/backfill"
	"tradecore/internal/execution"
	"tradecore/internal/logger"
	"tradecore/internal/marketdata/ws"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/notification"
	redisstore "tradecore/internal/store/redis"
	sqlitestore "tradecore/internal/store/sqlite"
	"tradecore/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $TRADECORE_CONFIG or ./config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strategyd: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("strategyd", cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strategyd: logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("strategyd failed", zap.Error(err))
	}
	log.Info("strategyd stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	// ---- Setup context for graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Background writers own their stores and close them once drained.
	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
	}()

	// ---- Setup metrics & health ----
	var (
		prom *metrics.Metrics
		srv  *metrics.Server
	)
	health := metrics.NewHealthStatus()
	if cfg.Metrics.Enabled {
		prom = metrics.New(nil)
		srv = metrics.NewServer(cfg.Metrics.Addr, health, nil, log.Named("metrics"))
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	sinks := model.MultiSink{}
	if prom != nil {
		sinks = append(sinks, prom)
	}
	var hub *api.Hub
	if srv != nil && cfg.Metrics.API {
		hub = api.NewHub(cfg.Metrics.StreamReplay, log.Named("api"))
		sinks = append(sinks, hub)
	}

	// ---- SQLite candle store (off hot path) ----
	var (
		sqlDB  *sql.DB
		reader *sqlitestore.Reader
	)
	if cfg.SQLite.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return errors.Wrap(err, "create sqlite dir")
		}
		sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{
			DBPath:    cfg.SQLite.Path,
			QueueSize: cfg.SQLite.QueueSize,
		}, log.Named("sqlite"))
		if err != nil {
			return errors.Wrap(err, "sqlite init")
		}
		sqlWriter.OnCommit = prom.SQLiteCommitted
		sqlDB = sqlWriter.DB()
		sinks = append(sinks, sqlWriter)

		wg.Add(1)
		go func() {
			defer wg.Done()
			sqlWriter.Run(ctx)
			sqlWriter.Close()
		}()

		if cfg.Backfill.UseStore {
			reader, err = sqlitestore.NewReader(cfg.SQLite.Path)
			if err != nil {
				return errors.Wrap(err, "sqlite reader")
			}
			defer reader.Close()
		}
		log.Info("sqlite store ready", zap.String("path", cfg.SQLite.Path))
	}

	// ---- Redis publisher ----
	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		cb := redisstore.NewCircuitBreaker(cfg.Redis.MaxFailures, cfg.Redis.ResetTimeout)
		cb.OnStateChange = func(from, to redisstore.State) {
			log.Warn("redis circuit breaker transition", zap.Stringer("from", from), zap.Stringer("to", to))
			prom.CircuitState(int(to))
		}
		pub, err := redisstore.NewPublisher(redisstore.PublisherConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			QueueSize: cfg.Redis.QueueSize,
			MaxBuffer: cfg.Redis.MaxBuffer,
		}, cb, log.Named("redis"))
		if err != nil {
			log.Warn("redis init failed, continuing without redis", zap.Error(err))
		} else {
			pub.OnBuffer = prom.RedisBuffered
			pub.OnFlush = prom.RedisFlushed
			pub.OnWrite = prom.RedisWritten
			rdb = pub.Client()
			sinks = append(sinks, pub)

			wg.Add(1)
			go func() {
				defer wg.Done()
				pub.Run(ctx)
				pub.Close()
			}()
		}
	}

	// ---- Trade journal ----
	var journal *execution.Journal
	if cfg.Executor.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Executor.JournalPath), 0o755); err != nil {
			return errors.Wrap(err, "create journal dir")
		}
		var err error
		journal, err = execution.NewJournal(cfg.Executor.JournalPath, log.Named("journal"))
		if err != nil {
			return errors.Wrap(err, "journal init")
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	// ---- Fill alerts ----
	if cfg.Notify.Enabled() {
		var channels notification.Multi
		if cfg.Notify.WebhookURL != "" {
			channels = append(channels, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
		}
		if cfg.Notify.TelegramBotToken != "" {
			tg, err := notification.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
			if err != nil {
				log.Warn("telegram alerts disabled", zap.Error(err))
			} else {
				channels = append(channels, tg)
			}
		}
		alerter := notification.NewAlerter(channels, cfg.Notify.QueueSize, log.Named("notify"))
		sinks = append(sinks, alerter)

		wg.Add(1)
		go func() {
			defer wg.Done()
			alerter.Run(ctx)
		}()
	}

	// ---- Executor ----
	var (
		exec  model.Executor
		paper *execution.PaperExecutor
	)
	switch cfg.Executor.Kind {
	case "transaction":
		tx, err := execution.NewTransactionExecutor(cfg.Executor.Transaction, log.Named("executor"))
		if err != nil {
			return err
		}
		exec = tx
	default:
		paper = execution.NewPaperExecutor(cfg.Executor.SlippageBps, log.Named("executor"))
		exec = paper
	}
	log.Info("executor ready", zap.String("kind", cfg.Executor.Kind))

	// ---- Backfill sources: local store first, then Binance ----
	var loaders []model.HistoryLoader
	if reader != nil {
		loaders = append(loaders, reader)
	}
	if cfg.Backfill.UseBinance {
		loaders = append(loaders, backfill.NewBinance(cfg.Backfill.Binance, log.Named("backfill")))
	}

	// ---- Strategies ----
	hooks := prom.StrategyHooks()
	countTick := hooks.OnTick
	hooks.OnTick = func(symbol string) {
		health.SetLastTickTime(time.Now())
		if countTick != nil {
			countTick(symbol)
		}
	}

	engine := strategy.NewEngine(cfg.LaneBuffer, log.Named("engine"))
	engine.Hooks = hooks
	if paper != nil {
		engine.Marker = paper
	}

	history := backfill.NewChain(log.Named("backfill"), loaders...)
	deps := strategy.Deps{
		Executor: exec,
		Loader:   history,
		Sink:     sinks,
		Logger:   log,
		Hooks:    hooks,
	}
	names := make([]string, 0, len(cfg.Strategies))
	for i, sc := range cfg.Strategies {
		s, err := buildStrategy(ctx, sc, deps)
		if err != nil {
			return errors.Wrapf(err, "strategies[%d]", i)
		}
		engine.Register(s)
		names = append(names, s.Name())
	}
	health.SetStrategies(names)

	// ---- REST + event stream ----
	if hub != nil {
		apiDeps := api.Deps{Strategies: engine, Hub: hub, Logger: log.Named("api")}
		if journal != nil {
			apiDeps.Trades = journal
		}
		if len(loaders) > 0 {
			apiDeps.Candles = history
		}
		srv.Handle("/api/", api.NewRouter(apiDeps))
	}

	// ---- Periodic status report + liveness checks ----
	sched := gocron.NewScheduler(time.UTC)
	sched.SingletonModeAll()
	if _, err := sched.Every(cfg.StatusInterval).Do(reportStatus, engine, prom, log); err != nil {
		return errors.Wrap(err, "schedule status report")
	}
	if _, err := sched.Every(10*time.Second).Do(health.Probe, ctx, rdb, sqlDB); err != nil {
		return errors.Wrap(err, "schedule liveness check")
	}
	sched.StartAsync()
	defer sched.Stop()

	// ---- Feed ----
	ticks := make(chan model.RawTick, cfg.LaneBuffer)
	switch cfg.Feed.Source {
	case "redis":
		consumer, err := redisstore.NewTickConsumer(redisstore.ConsumerConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Feed.Redis.Stream,
			Group:    cfg.Feed.Redis.Group,
			Consumer: cfg.Feed.Redis.Consumer,
		}, log.Named("feed"))
		if err != nil {
			return errors.Wrap(err, "redis feed")
		}
		if err := consumer.EnsureGroup(ctx); err != nil {
			consumer.Close()
			return err
		}
		health.SetFeedConnected(true)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			if err := consumer.Consume(ctx, ticks); err != nil && ctx.Err() == nil {
				log.Error("redis feed stopped", zap.Error(err))
			}
		}()
	default:
		feed := ws.New(cfg.Feed.WS, log.Named("feed"))
		feed.OnReconnect = func() {
			health.SetFeedConnected(false)
			prom.Reconnected()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := feed.Run(ctx, ticks); err != nil {
				log.Error("ws feed stopped", zap.Error(err))
			}
		}()
	}

	log.Info("strategyd running",
		zap.Strings("strategies", names),
		zap.Strings("symbols", engine.Symbols()),
		zap.String("feed", cfg.Feed.Source),
	)

	// Blocks until shutdown.
	engine.Run(ctx, ticks)

	reportStatus(engine, prom, log)
	return nil
}

func buildStrategy(ctx context.Context, sc config.StrategyConfig, deps strategy.Deps) (strategy.Strategy, error) {
	switch sc.Kind {
	case strategy.KindSMACrossover:
		p, err := sc.Crossover()
		if err != nil {
			return nil, err
		}
		return strategy.NewSMACrossover(p, deps)
	case strategy.KindADXTrend:
		p, err := sc.Trend()
		if err != nil {
			return nil, err
		}
		return strategy.NewADXTrend(ctx, p, deps)
	default:
		return nil, errors.Errorf("unknown strategy kind %q", sc.Kind)
	}
}

// reportStatus logs each instance's position and wallet and refreshes the
// balance and lane gauges.
func reportStatus(engine *strategy.Engine, prom *metrics.Metrics, log *zap.Logger) {
	lanes := engine.LaneStats()
	prom.ObserveLanes(lanes)
	for sym, st := range lanes {
		if st.Cap > 0 && st.Len*4 >= st.Cap*3 {
			log.Warn("symbol lane near capacity", zap.String("symbol", sym), zap.Int("len", st.Len), zap.Int("cap", st.Cap))
		}
	}
	for _, st := range engine.Statuses() {
		prom.ObserveStatus(st)
		log.Info("budget status",
			zap.String("strategy", st.Name),
			zap.String("symbol", st.Symbol),
			zap.Stringer("position", st.Position.State),
			zap.Any("balances", st.Balances),
			zap.Float64("realized_pnl", st.RealizedPnL),
			zap.Int("trades", st.Summary.TotalTrades),
			zap.Int("candles", st.Candles),
			zap.Uint64("candles_evicted", st.Evicted),
		)
	}
}
