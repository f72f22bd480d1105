// Package synthesizer turns a qualifying evaluation outcome into a Signal
// with entry, stop and target prices.
package synthesizer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/strategy"
)

// Pricing stages reported in provenance and errors.
const (
	StageEntry    = "entry"
	StageATR      = "atr"
	StageSwing    = "swing"
	StageFixed    = "fixed"
	StageFallback = "fallback"
)

// ErrInvalidGeometry is matched by every GeometryError.
var ErrInvalidGeometry = errors.New("synthesizer: invalid stop/target geometry")

// GeometryError reports a degenerate price set at a pricing stage.
type GeometryError struct {
	Stage  string
	Entry  float64
	Stop   float64
	Target float64
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("synthesizer: degenerate %s geometry entry=%g stop=%g target=%g", e.Stage, e.Entry, e.Stop, e.Target)
}

// Is makes errors.Is(err, ErrInvalidGeometry) match.
func (e *GeometryError) Is(target error) bool { return target == ErrInvalidGeometry }

// Params configures pricing.
type Params struct {
	EntryTF      model.Timeframe `yaml:"entry_tf"`
	ATRTF        model.Timeframe `yaml:"atr_tf"`
	SwingTF      model.Timeframe `yaml:"swing_tf"`
	FallbackRR   float64         `yaml:"fallback_rr" validate:"gt=0"`
	FixedStopPct float64         `yaml:"fixed_stop_pct" validate:"gt=0,lt=1"`
	PositionSize float64         `yaml:"position_size" validate:"gt=0"`
}

// DefaultParams returns the standard pricing setup.
func DefaultParams() Params {
	return Params{
		EntryTF:      model.TF30m,
		ATRTF:        model.TF15m,
		SwingTF:      model.TF5m,
		FallbackRR:   2.0,
		FixedStopPct: 0.015,
		PositionSize: 10.0,
	}
}

// Option customizes a Synthesizer.
type Option func(*Synthesizer)

// WithClock injects the issuance clock.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// WithIDs injects the signal id generator.
func WithIDs(newID func() string) Option {
	return func(s *Synthesizer) { s.newID = newID }
}

// Synthesizer prices signals. It is safe for concurrent use.
type Synthesizer struct {
	p     Params
	now   func() time.Time
	newID func() string
}

// New creates a synthesizer.
func New(p Params, opts ...Option) *Synthesizer {
	s := &Synthesizer{p: p, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params returns the pricing configuration.
func (s *Synthesizer) Params() Params { return s.p }

// Synthesize prices a qualifying outcome. The ATR stop is tried first; a
// degenerate or missing ATR falls back to the swing level, then to a fixed
// percentage. When the fallback degenerates too the signal is discarded and a
// *GeometryError is returned.
func (s *Synthesizer) Synthesize(snap *indicator.Snapshot, o strategy.Outcome) (model.Signal, error) {
	entry, ok := snap.Frame(s.p.EntryTF).LastClose.Get()
	if !ok || entry <= 0 {
		return model.Signal{}, &GeometryError{Stage: StageEntry, Entry: entry}
	}

	sig := model.Signal{
		ID:           s.newID(),
		Symbol:       snap.Symbol,
		Direction:    o.Direction,
		Tier:         o.Tier.Key,
		Entry:        entry,
		IssuedAt:     s.now().UTC(),
		Status:       model.StatusOpen,
		PositionSize: s.p.PositionSize,
	}

	stage, err := s.price(&sig, snap, o)
	if err != nil {
		return model.Signal{}, err
	}
	sig.Provenance = Provenance(snap, o, stage, s.p)
	return sig, nil
}

func (s *Synthesizer) price(sig *model.Signal, snap *indicator.Snapshot, o strategy.Outcome) (string, error) {
	sign := o.Direction.Sign()
	entry := sig.Entry

	if atr, ok := snap.Frame(s.p.ATRTF).ATR.Get(); ok && atr > 0 {
		stop := entry - sign*atr*o.Tier.ATRStopMultiplier
		sig.Stop, sig.Target = stop, entry+sign*math.Abs(entry-stop)*o.Tier.RewardRiskRatio
		if sig.GeometryValid() {
			return StageATR, nil
		}
	}

	type candidate struct {
		stage string
		stop  float64
	}
	cands := make([]candidate, 0, 2)
	if lvl, ok := s.swingStop(snap, o.Direction, entry); ok {
		cands = append(cands, candidate{StageSwing, lvl})
	}
	cands = append(cands, candidate{StageFixed, entry * (1 - sign*s.p.FixedStopPct)})
	for _, c := range cands {
		sig.Stop, sig.Target = c.stop, entry+sign*math.Abs(entry-c.stop)*s.p.FallbackRR
		if sig.GeometryValid() {
			return c.stage, nil
		}
	}
	return "", &GeometryError{Stage: StageFallback, Entry: entry, Stop: sig.Stop, Target: sig.Target}
}

// swingStop returns the swing level on the loss side of entry.
func (s *Synthesizer) swingStop(snap *indicator.Snapshot, dir model.Direction, entry float64) (float64, bool) {
	f := snap.Frame(s.p.SwingTF)
	if dir == model.Long {
		if lo, ok := f.SwingLow.Get(); ok && lo > 0 && lo < entry {
			return lo, true
		}
		return 0, false
	}
	if hi, ok := f.SwingHigh.Get(); ok && hi > entry {
		return hi, true
	}
	return 0, false
}
