// Package app wires configuration into the components shared by the bot,
// the nightly settlement and the API.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/config"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/bot"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/logger"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/marketdata/kucoin"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/metrics"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/notification"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/settlement"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/store/csvledger"
	redisstore "github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/store/redis"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/store/sqlite"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/strategy"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/synthesizer"
)

// Lock and breaker settings.
const (
	lockLease      = 30 * time.Second
	lockWait       = 10 * time.Second
	breakerFails   = 5
	breakerReset   = 30 * time.Second
	livenessPeriod = 15 * time.Second
	kucoinBurst    = 10
	kucoinPerSec   = 8
)

// Runtime holds the wired components of one process.
type Runtime struct {
	Cfg      *config.Config
	Strategy *config.Strategy
	Log      zerolog.Logger

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus

	// Archive is always SQLite; it is also the ledger unless LEDGER_BACKEND=csv.
	Archive *sqlite.Store
	Ledger  model.SignalLedger

	// Redis is nil when REDIS_ADDR is empty; Publisher is nil then too.
	Redis     *redisstore.Client
	Publisher *redisstore.Publisher
	Locker    model.Locker

	KuCoin   *kucoin.Client
	Notifier notification.Notifier
}

// New builds a Runtime from cfg. Redis is optional: an unreachable server
// is logged and the process falls back to the in-process lock.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Runtime, error) {
	strat, err := config.LoadStrategy(cfg.StrategyConfig)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Cfg:      cfg,
		Strategy: strat,
		Log:      log,
		Registry: prometheus.NewRegistry(),
		Health:   metrics.NewHealthStatus(),
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Metrics = metrics.New(rt.Registry)

	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: data dir: %w", err)
		}
	}
	rt.Archive, err = sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath, Logger: logger.Component(log, "sqlite")})
	if err != nil {
		return nil, err
	}
	rt.Ledger = rt.Archive
	if cfg.LedgerBackend == "csv" {
		l, err := csvledger.Open(cfg.SignalsDir, logger.Component(log, "csvledger"))
		if err != nil {
			rt.Archive.Close()
			return nil, err
		}
		rt.Ledger = l
	}

	rt.Locker = redisstore.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rt.Health.SetRedisEnabled(true)
		client, err := redisstore.Dial(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using local lock and no stream")
		} else {
			rt.Redis = client
			rt.Health.SetRedisConnected(true)
			rt.Locker = redisstore.NewDayLock(client, lockLease, lockWait)
			rt.Publisher = rt.newPublisher(client)
		}
	}

	rt.KuCoin = kucoin.New(cfg.KuCoinBaseURL,
		kucoin.WithLogger(logger.Component(log, "kucoin")),
		kucoin.WithPacing(kucoinBurst, kucoinPerSec),
		kucoin.WithRateLimitHook(rt.Metrics.KuCoinRateLimited.Inc),
	)
	rt.Notifier = rt.newNotifier()
	return rt, nil
}

func (rt *Runtime) newPublisher(client *redisstore.Client) *redisstore.Publisher {
	cb := redisstore.NewCircuitBreaker(breakerFails, breakerReset)
	cb.OnStateChange = func(from, to redisstore.State) {
		rt.Metrics.ObserveBreaker(int(from), int(to))
		rt.Health.SetRedisConnected(to == redisstore.StateClosed)
	}
	pub := redisstore.NewPublisher(client, cb, logger.Component(rt.Log, "publisher"))
	pub.OnBuffer = rt.Metrics.RedisBufferedWrites.Inc
	pub.OnFlush = func(n int) { rt.Metrics.RedisReplayedWrites.Add(float64(n)) }
	return pub
}

func (rt *Runtime) newNotifier() notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier(logger.Component(rt.Log, "notify"))}
	if rt.Cfg.TelegramEnabled() {
		multi = append(multi, notification.NewTelegramNotifier(rt.Cfg.TelegramBotToken, rt.Cfg.TelegramChatID, logger.Component(rt.Log, "telegram")))
	}
	if rt.Cfg.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(rt.Cfg.WebhookURL, logger.Component(rt.Log, "webhook")))
	}
	return multi
}

// SignalPublisher returns the publisher as a port, nil when Redis is off.
func (rt *Runtime) SignalPublisher() model.SignalPublisher {
	if rt.Publisher == nil {
		return nil
	}
	return rt.Publisher
}

// StartObservability serves /metrics and /healthz on MetricsAddr and starts
// the liveness probes. The returned func stops the server.
func (rt *Runtime) StartObservability(ctx context.Context) func(context.Context) {
	srv := metrics.NewServer(rt.Cfg.MetricsAddr, rt.Registry, rt.Health, logger.Component(rt.Log, "metrics"))
	srv.Start()
	var rdb *goredis.Client
	if rt.Redis != nil {
		rdb = rt.Redis.Raw()
	}
	rt.Health.StartLivenessChecker(ctx, rdb, rt.Archive.DB(), livenessPeriod)
	return srv.Stop
}

// Close releases the ledger, archive and Redis.
func (rt *Runtime) Close() {
	if l, ok := rt.Ledger.(*csvledger.Ledger); ok {
		l.Close()
	}
	rt.Archive.Close()
	if rt.Redis != nil {
		rt.Redis.Close()
	}
}

// Bot builds the evaluation cycle service.
func (rt *Runtime) Bot() *bot.Service {
	s := rt.Strategy
	return bot.New(rt.Cfg.SymbolList(), bot.Deps{
		Source:      rt.KuCoin,
		Builder:     indicator.NewBuilder(s.Indicators),
		Engine:      strategy.NewEngine(s.Table, s.Engine),
		Synthesizer: synthesizer.New(s.Synthesizer),
		Ledger:      rt.Ledger,
		Locker:      rt.Locker,
		Publisher:   rt.SignalPublisher(),
		Notifier:    rt.Notifier,
		Recorder:    rt.Metrics,
		Logger:      logger.Component(rt.Log, "bot"),
	}, bot.WithConcurrency(rt.Cfg.Concurrency))
}

// Simulator builds the nightly settlement over the archived 1m candles.
func (rt *Runtime) Simulator() *settlement.Simulator {
	return settlement.NewSimulator(
		rt.Ledger,
		sqlite.NewCachingSource(rt.Archive, rt.KuCoin),
		rt.Locker,
		rt.Strategy.Settlement,
		settlement.WithLogger(logger.Component(rt.Log, "settlement")),
		settlement.WithRecorder(rt.Metrics),
		settlement.WithConcurrency(rt.Cfg.Concurrency),
	)
}
