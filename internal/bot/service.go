package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/logger"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/notification"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/settlement"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/strategy"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/synthesizer"
)

// Failure stages of a symbol evaluation.
const (
	StageFetch      = "fetch"
	StageSynthesize = "synthesize"
	StageLedger     = "ledger"
	StagePublish    = "publish"
	StageNotify     = "notify"
)

// Recorder receives cycle metrics.
type Recorder interface {
	ObserveSignal(sig model.Signal)
	ObserveFailure(stage string)
	ObserveDroppedTF(tf model.Timeframe)
	ObserveCycle(d time.Duration, evaluated int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSignal(model.Signal)       {}
func (nopRecorder) ObserveFailure(string)            {}
func (nopRecorder) ObserveDroppedTF(model.Timeframe) {}
func (nopRecorder) ObserveCycle(time.Duration, int)  {}

// Deps are the collaborators of a Service. Publisher and Notifier are optional.
type Deps struct {
	Source      model.CandleSource
	Builder     *indicator.Builder
	Engine      *strategy.Engine
	Synthesizer *synthesizer.Synthesizer
	Ledger      model.SignalLedger
	Locker      model.Locker
	Publisher   model.SignalPublisher
	Notifier    notification.Notifier
	Recorder    Recorder
	Logger      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency bounds how many symbols are evaluated at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithFetchPlan replaces the default fetch plan.
func WithFetchPlan(plan []FetchWindow) Option { return func(s *Service) { s.plan = plan } }

// WithClock injects the cycle clock.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service evaluates a fixed symbol list once per cycle.
type Service struct {
	Deps
	symbols     []string
	plan        []FetchWindow
	concurrency int
	now         func() time.Time
}

// New creates a Service.
func New(symbols []string, deps Deps, opts ...Option) *Service {
	s := &Service{
		Deps:        deps,
		symbols:     symbols,
		plan:        DefaultFetchPlan(),
		concurrency: 4,
		now:         time.Now,
	}
	if s.Recorder == nil {
		s.Recorder = nopRecorder{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CycleResult summarizes one evaluation cycle.
type CycleResult struct {
	Evaluated int
	Failed    map[string]error
	Signals   []model.Signal
}

// Err summarizes failed symbols, nil when every symbol succeeded.
func (r CycleResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d symbols failed", len(r.Failed), r.Evaluated+len(r.Failed))
}

// RunCycle evaluates every symbol. A failing symbol is logged, counted and
// reported in the result; it never stops the others. The returned error is
// non-nil only when ctx ends the cycle.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	start := s.now()
	res := CycleResult{Failed: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, symbol := range s.symbols {
		g.Go(func() error {
			sigs, err := s.evaluate(gctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			res.Signals = append(res.Signals, sigs...)
			if err != nil {
				res.Failed[symbol] = err
			} else {
				res.Evaluated++
			}
			return nil
		})
	}
	g.Wait()

	elapsed := s.now().Sub(start)
	s.Recorder.ObserveCycle(elapsed, res.Evaluated)
	s.Logger.Info().
		Int("evaluated", res.Evaluated).
		Int("failed", len(res.Failed)).
		Int("signals", len(res.Signals)).
		Dur("elapsed", elapsed).
		Msg("cycle done")
	return res, ctx.Err()
}

// Run calls RunCycle immediately and then every interval until ctx is done.
// onCycle, when set, sees every result.
func (s *Service) Run(ctx context.Context, interval time.Duration, onCycle func(CycleResult)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.RunCycle(ctx)
		if err != nil {
			return err
		}
		if onCycle != nil {
			onCycle(res)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// evaluate runs one symbol end to end and returns the signals it issued.
// Failures after a signal is recorded (publish, notify) are logged and
// counted but do not fail the symbol.
func (s *Service) evaluate(ctx context.Context, symbol string) ([]model.Signal, error) {
	now := s.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(symbol, now))
	log := logger.From(ctx, s.Logger).With().Str("symbol", symbol).Logger()

	series, err := s.fetch(ctx, symbol, now)
	if err != nil {
		s.Recorder.ObserveFailure(StageFetch)
		log.Error().Err(err).Msg("fetch failed")
		return nil, err
	}

	snap := s.Builder.Snapshot(symbol, series)
	logSnapshot(log, snap)

	var issued []model.Signal
	var errs []error
	for _, d := range s.Engine.DecideBoth(snap) {
		logDecision(log, d)
		if d.Selected == nil {
			continue
		}
		sig, err := s.Synthesizer.Synthesize(snap, *d.Selected)
		if err != nil {
			s.Recorder.ObserveFailure(StageSynthesize)
			log.Warn().Err(err).Str("direction", string(d.Direction)).Msg("signal discarded")
			continue
		}
		if err := s.issue(ctx, log, sig, *d.Selected); err != nil {
			errs = append(errs, err)
			continue
		}
		issued = append(issued, sig)
	}
	return issued, errors.Join(errs...)
}

// fetch loads every timeframe of the plan concurrently and drops those with
// fewer candles than the builder needs.
func (s *Service) fetch(ctx context.Context, symbol string, now time.Time) (map[model.Timeframe][]model.Candle, error) {
	var mu sync.Mutex
	series := make(map[model.Timeframe][]model.Candle, len(s.plan))

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.plan {
		g.Go(func() error {
			from, to := w.window(now)
			cs, err := s.Source.Candles(gctx, symbol, w.TF, from, to)
			if err != nil {
				return fmt.Errorf("%s %s: %w", symbol, w.TF, err)
			}
			mu.Lock()
			series[w.TF] = cs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	need := s.Builder.Params().MinCandles
	for tf, cs := range series {
		if len(cs) < need {
			s.Recorder.ObserveDroppedTF(tf)
			delete(series, tf)
		}
	}
	return series, nil
}

// issue records sig under the day lock, then publishes and notifies it.
func (s *Service) issue(ctx context.Context, log zerolog.Logger, sig model.Signal, o strategy.Outcome) error {
	day := calendar.DayKey(sig.IssuedAt)
	release, err := s.Locker.Lock(ctx, settlement.LockKey(day))
	if err != nil {
		s.Recorder.ObserveFailure(StageLedger)
		return fmt.Errorf("lock %s: %w", day, err)
	}
	err = s.Ledger.Append(ctx, day, sig)
	release()
	if err != nil {
		s.Recorder.ObserveFailure(StageLedger)
		log.Error().Err(err).Str("id", sig.ID).Msg("ledger append failed")
		return fmt.Errorf("append %s: %w", sig.ID, err)
	}
	s.Recorder.ObserveSignal(sig)
	log.Info().
		Str("id", sig.ID).
		Str("direction", string(sig.Direction)).
		Str("tier", string(sig.Tier)).
		Float64("entry", sig.Entry).
		Float64("stop", sig.Stop).
		Float64("target", sig.Target).
		Msg("signal issued")

	if s.Publisher != nil {
		if err := s.Publisher.PublishSignal(ctx, day, sig); err != nil {
			s.Recorder.ObserveFailure(StagePublish)
			log.Warn().Err(err).Str("id", sig.ID).Msg("publish failed")
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.Send(ctx, notification.SignalAlert(message(sig, o))); err != nil {
			s.Recorder.ObserveFailure(StageNotify)
			log.Warn().Err(err).Str("id", sig.ID).Msg("notify failed")
		}
	}
	return nil
}

func message(sig model.Signal, o strategy.Outcome) notification.SignalMessage {
	rules := make([]notification.RuleLine, 0, len(o.Results))
	for _, r := range o.Results {
		rules = append(rules, notification.RuleLine{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	name := o.Tier.Name
	if name == "" {
		name = string(o.Tier.Key)
	}
	return notification.SignalMessage{
		Signal:    sig,
		TierLabel: name,
		TierEmoji: o.Tier.Emoji,
		Passed:    o.PassedCount(),
		Total:     len(o.Results),
		Rules:     rules,
	}
}
