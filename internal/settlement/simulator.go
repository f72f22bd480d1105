package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/logger"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// Recorder receives one call per settled signal.
type Recorder interface {
	ObserveSettlement(status model.Status, pnl float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSettlement(model.Status, float64) {}

// Simulator settles a ledger day.
type Simulator struct {
	ledger      model.SignalLedger
	source      model.CandleSource
	locker      model.Locker
	params      Params
	log         zerolog.Logger
	rec         Recorder
	concurrency int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the simulator's logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Simulator) { s.log = l } }

// WithRecorder sets the settlement metrics sink.
func WithRecorder(r Recorder) Option { return func(s *Simulator) { s.rec = r } }

// WithConcurrency caps parallel candle fetches.
func WithConcurrency(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewSimulator wires a simulator.
func NewSimulator(ledger model.SignalLedger, source model.CandleSource, locker model.Locker, p Params, opts ...Option) *Simulator {
	if p.ReplayTF == "" {
		p.ReplayTF = model.TF1m
	}
	s := &Simulator{
		ledger:      ledger,
		source:      source,
		locker:      locker,
		params:      p,
		log:         zerolog.Nop(),
		rec:         nopRecorder{},
		concurrency: 4,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LockKey is the lock held while a day's ledger is being rewritten.
func LockKey(day string) string { return "lock:ledger:" + day }

// Run settles every OPEN signal of day and rewrites the day's ledger once.
// Signals already terminal are left as they are, so running the same day
// again changes nothing. The returned report covers the whole day.
func (s *Simulator) Run(ctx context.Context, day string) (Report, error) {
	start, end, err := calendar.DayBounds(day)
	if err != nil {
		return Report{}, err
	}
	manual, _ := calendar.ManualCloseTime(day)
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("settle-"+day, time.Now()))
	log := logger.From(ctx, s.log).With().Str("day", day).Logger()

	release, err := s.locker.Lock(ctx, LockKey(day))
	if err != nil {
		return Report{}, fmt.Errorf("settlement: lock %s: %w", day, err)
	}
	defer release()

	sigs, err := s.ledger.ListDay(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("settlement: list %s: %w", day, err)
	}

	settled := make([]model.Signal, len(sigs))
	copy(settled, sigs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	changed := 0
	for i := range settled {
		if settled[i].Status.Terminal() {
			continue
		}
		changed++
		i := i
		g.Go(func() error {
			settled[i] = s.settle(gctx, log, settled[i], start, end, manual)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("settlement: %s: %w", day, err)
	}

	if changed > 0 {
		if err := s.ledger.ReplaceDay(ctx, day, settled); err != nil {
			return Report{}, fmt.Errorf("settlement: replace %s: %w", day, err)
		}
	}

	rep := BuildReport(day, settled)
	log.Info().
		Int("signals", rep.Total).
		Int("settled", changed).
		Int("resolved", rep.Resolved).
		Int("data_gap", rep.Degraded).
		Float64("total_pnl", rep.TotalPnL).
		Msg("day settled")
	return rep, nil
}

func (s *Simulator) settle(ctx context.Context, log zerolog.Logger, sig model.Signal, start, end, manual time.Time) model.Signal {
	from := sig.IssuedAt
	if from.IsZero() || from.Before(start) {
		from = start
	}
	from = from.Truncate(time.Minute)

	candles, err := s.source.Candles(ctx, sig.Symbol, s.params.ReplayTF, from, end)
	if err != nil {
		log.Warn().Err(err).Str("symbol", sig.Symbol).Str("id", sig.ID).Msg("replay candles unavailable")
		candles = nil
	}

	out, err := Resolve(sig, candles, manual, s.params)
	if errors.Is(err, ErrDataGap) {
		log.Warn().Str("symbol", sig.Symbol).Str("id", sig.ID).Msg("forced close at entry")
	}
	s.rec.ObserveSettlement(out.Status, out.FinalPnL)
	log.Debug().
		Str("symbol", out.Symbol).
		Str("id", out.ID).
		Str("status", string(out.Status)).
		Float64("pnl", out.FinalPnL).
		Msg("signal settled")
	return out
}
