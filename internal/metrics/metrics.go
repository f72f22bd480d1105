// Package metrics exposes Prometheus metrics and the health endpoint of the
// signal bot and the nightly settlement.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

const namespace = "signalbot"

// Metrics holds all Prometheus metrics of the bot.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	CycleDuration    prometheus.Histogram
	SymbolsEvaluated prometheus.Counter
	SymbolFailures   *prometheus.CounterVec // labels: stage
	SignalsIssued    *prometheus.CounterVec // labels: tier, direction
	TFsDropped       *prometheus.CounterVec // labels: tf

	KuCoinRateLimited prometheus.Counter

	SettlementsTotal   *prometheus.CounterVec // labels: status
	SettlementPnL      prometheus.Histogram
	SettlementDuration prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	RedisReplayedWrites      prometheus.Counter
}

// New creates the metrics and registers them with reg.
// A nil reg means prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Evaluation cycles run",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle over all symbols",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		SymbolsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_evaluated_total",
			Help:      "Symbols that reached rule evaluation",
		}),
		SymbolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_failures_total",
			Help:      "Per-symbol failures by stage",
		}, []string{"stage"}),
		SignalsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_issued_total",
			Help:      "Signals recorded in the ledger",
		}, []string{"tier", "direction"}),
		TFsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeframes_dropped_total",
			Help:      "Timeframes dropped for holding too few candles",
		}, []string{"tf"}),
		KuCoinRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kucoin_rate_limited_total",
			Help:      "KuCoin requests throttled and retried",
		}),
		SettlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Signals settled by resulting status",
		}, []string{"status"}),
		SettlementPnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_pnl_usd",
			Help:      "Final PnL of settled signals",
			Buckets:   []float64{-1, -0.5, -0.25, -0.1, 0, 0.1, 0.25, 0.5, 1},
		}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Wall time of one nightly settlement run",
			Buckets:   prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_trips_total",
			Help:      "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_buffered_writes_total",
			Help:      "Signal publications buffered while the circuit breaker was open",
		}),
		RedisReplayedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_replayed_writes_total",
			Help:      "Buffered publications replayed after recovery",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SymbolsEvaluated,
		m.SymbolFailures,
		m.SignalsIssued,
		m.TFsDropped,
		m.KuCoinRateLimited,
		m.SettlementsTotal,
		m.SettlementPnL,
		m.SettlementDuration,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.RedisReplayedWrites,
	)
	return m
}

// ObserveSettlement records one settled signal.
func (m *Metrics) ObserveSettlement(status model.Status, pnl float64) {
	m.SettlementsTotal.WithLabelValues(string(status)).Inc()
	m.SettlementPnL.Observe(pnl)
}

// ObserveSignal records one issued signal.
func (m *Metrics) ObserveSignal(sig model.Signal) {
	m.SignalsIssued.WithLabelValues(string(sig.Tier), string(sig.Direction)).Inc()
}

// ObserveFailure records a per-symbol failure at stage.
func (m *Metrics) ObserveFailure(stage string) {
	m.SymbolFailures.WithLabelValues(stage).Inc()
}

// ObserveDroppedTF records a timeframe dropped for lack of candles.
func (m *Metrics) ObserveDroppedTF(tf model.Timeframe) {
	m.TFsDropped.WithLabelValues(tf.String()).Inc()
}

// ObserveCycle records one finished evaluation cycle.
func (m *Metrics) ObserveCycle(d time.Duration, evaluated int) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.SymbolsEvaluated.Add(float64(evaluated))
}

// ObserveSettlementRun records the wall time of a settlement run.
func (m *Metrics) ObserveSettlementRun(d time.Duration) {
	m.SettlementDuration.Observe(d.Seconds())
}

// ObserveBreaker tracks a circuit breaker transition given as its numeric state.
func (m *Metrics) ObserveBreaker(from, to int) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 && from != 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool
	RedisConnected bool
	LedgerOK       bool
	LastCycleAt    time.Time
	LastCycleErr   string

	RedisLatencyMs  float64
	LedgerLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), LedgerOK: true, now: time.Now}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLedgerOK(v bool) {
	h.mu.Lock()
	h.LedgerOK = v
	h.mu.Unlock()
}

// SetCycle records the end of an evaluation cycle.
func (h *HealthStatus) SetCycle(at time.Time, err error) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastCycleErr = ""
	if err != nil {
		h.LastCycleErr = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := h.now()
	err := rdb.Ping(ctx).Err()
	latency := h.now().Sub(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckLedger pings the SQLite ledger and records latency + health.
func (h *HealthStatus) CheckLedger(ctx context.Context, db *sql.DB) {
	start := h.now()
	err := db.PingContext(ctx)
	latency := h.now().Sub(start)

	h.mu.Lock()
	h.LedgerOK = err == nil
	h.LedgerLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckLedger(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

type healthBody struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	LedgerOK        bool    `json:"ledger_ok"`
	LedgerLatencyMs float64 `json:"ledger_latency_ms"`
	LastCycleAt     string  `json:"last_cycle_at,omitempty"`
	LastCycleErr    string  `json:"last_cycle_error,omitempty"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// ServeHTTP handles the /healthz endpoint. A dead ledger is unhealthy; a
// configured but unreachable Redis only degrades, signals are buffered.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case !h.LedgerOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case h.RedisEnabled && !h.RedisConnected:
		overallStatus = "degraded"
	}

	body := healthBody{
		Status:          overallStatus,
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		LedgerOK:        h.LedgerOK,
		LedgerLatencyMs: h.LedgerLatencyMs,
		LastCycleErr:    h.LastCycleErr,
	}
	if !h.LastCycleAt.IsZero() {
		body.LastCycleAt = h.LastCycleAt.Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		body.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server. gatherer is usually
// prometheus.DefaultGatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
