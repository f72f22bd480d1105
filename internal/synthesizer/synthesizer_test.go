package synthesizer

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/risk"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/strategy"
)

var issued = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func newSynth(p Params) *Synthesizer {
	return New(p,
		WithClock(func() time.Time { return issued }),
		WithIDs(func() string { return "sig-1" }),
	)
}

// snap builds a snapshot with entry on 30m, ATR on 15m and swings on 5m.
func snap(entry, atr, swingHigh, swingLow indicator.Value) *indicator.Snapshot {
	return &indicator.Snapshot{
		Symbol: "SOL-USDT",
		Frames: map[model.Timeframe]*indicator.Frame{
			model.TF30m: {TF: model.TF30m, LastClose: entry},
			model.TF15m: {TF: model.TF15m, ATR: atr, BodyStrength: indicator.Of(0.7)},
			model.TF5m:  {TF: model.TF5m, SwingHigh: swingHigh, SwingLow: swingLow},
		},
	}
}

func outcomeFor(t *testing.T, dir model.Direction, key model.TierKey) strategy.Outcome {
	t.Helper()
	tier, ok := risk.DefaultTable().Get(key)
	if !ok {
		t.Fatalf("missing tier %s", key)
	}
	return strategy.Outcome{
		Symbol:       "SOL-USDT",
		Direction:    dir,
		Tier:         tier,
		TierIndex:    risk.DefaultTable().Index(key),
		PassedWeight: 22,
		TotalWeight:  24,
		Passed:       true,
		Results: []strategy.RuleResult{
			{Name: strategy.RuleHTFTrend, Passed: true, Detail: "gap ok"},
			{Name: strategy.RuleConfluence, Passed: false, Detail: "agree=1/4"},
		},
	}
}

var (
	na = indicator.Unavailable
	of = indicator.Of
)

func TestSynthesize_ATRLong(t *testing.T) {
	// MEDIUM: stop = 100 - 2*1.1 = 97.8, target = 100 + 2.2*1.8 = 103.96
	sig, err := newSynth(DefaultParams()).Synthesize(snap(of(100), of(2), na, na), outcomeFor(t, model.Long, model.TierMedium))
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "stop", sig.Stop, 97.8, 1e-9)
	assertClose(t, "target", sig.Target, 103.96, 1e-9)
	if sig.Status != model.StatusOpen || sig.ID != "sig-1" || !sig.IssuedAt.Equal(issued) {
		t.Errorf("unexpected signal header %+v", sig)
	}
	if sig.Tier != model.TierMedium || sig.PositionSize != 10 {
		t.Errorf("unexpected tier/size %s %.2f", sig.Tier, sig.PositionSize)
	}
	if !strings.Contains(sig.Provenance, "Pricing=atr") {
		t.Errorf("expected atr pricing in provenance: %s", sig.Provenance)
	}
}

func TestSynthesize_ATRShort(t *testing.T) {
	// LOW: stop = 100 + 2*1.2 = 102.4, target = 100 - 2.4*2 = 95.2
	sig, err := newSynth(DefaultParams()).Synthesize(snap(of(100), of(2), na, na), outcomeFor(t, model.Short, model.TierLow))
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "stop", sig.Stop, 102.4, 1e-9)
	assertClose(t, "target", sig.Target, 95.2, 1e-9)
}

func TestSynthesize_Fallbacks(t *testing.T) {
	cases := []struct {
		name       string
		s          *indicator.Snapshot
		dir        model.Direction
		stop, tgt  float64
		wantPrices bool
		stage      string
	}{
		{"swing when ATR unavailable", snap(of(100), na, of(104), of(97)), model.Long, 97, 106, true, StageSwing},
		{"swing short", snap(of(100), na, of(104), of(97)), model.Short, 104, 92, true, StageSwing},
		{"zero ATR falls back", snap(of(100), of(0), na, of(97)), model.Long, 97, 106, true, StageSwing},
		{"fixed when no swing", snap(of(100), na, na, na), model.Long, 98.5, 103, true, StageFixed},
		{"swing on the wrong side is ignored", snap(of(100), na, na, of(101)), model.Long, 98.5, 103, true, StageFixed},
		// ATR and swing both push the SHORT target below zero
		{"degenerate atr and swing", snap(of(100), of(50), of(160), na), model.Short, 101.5, 97, true, StageFixed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := newSynth(DefaultParams()).Synthesize(tc.s, outcomeFor(t, tc.dir, model.TierLow))
			if err != nil {
				t.Fatal(err)
			}
			assertClose(t, "stop", sig.Stop, tc.stop, 1e-9)
			assertClose(t, "target", sig.Target, tc.tgt, 1e-9)
			if !strings.Contains(sig.Provenance, "Pricing="+tc.stage) {
				t.Errorf("expected stage %s in %s", tc.stage, sig.Provenance)
			}
		})
	}
}

func TestSynthesize_DiscardsWhenFallbackDegenerates(t *testing.T) {
	p := DefaultParams()
	p.FixedStopPct = 0.5
	p.FallbackRR = 3 // target = 100 - 50*3 < 0
	_, err := newSynth(p).Synthesize(snap(of(100), na, na, na), outcomeFor(t, model.Short, model.TierHigh))
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}
	var ge *GeometryError
	if !errors.As(err, &ge) || ge.Stage != StageFallback {
		t.Errorf("expected fallback stage, got %+v", ge)
	}
}

func TestSynthesize_NoEntry(t *testing.T) {
	_, err := newSynth(DefaultParams()).Synthesize(snap(na, of(2), na, na), outcomeFor(t, model.Long, model.TierLow))
	var ge *GeometryError
	if !errors.As(err, &ge) || ge.Stage != StageEntry {
		t.Fatalf("expected entry geometry error, got %v", err)
	}
}

func TestSynthesize_GeometryAlwaysValid(t *testing.T) {
	s := newSynth(DefaultParams())
	for _, entry := range []float64{0.0001, 0.5, 100, 65000} {
		for _, atrMul := range []float64{0, 0.001, 0.02, 0.9, 5} {
			for _, dir := range model.Directions {
				for _, key := range []model.TierKey{model.TierLow, model.TierMedium, model.TierHigh} {
					sn := snap(of(entry), of(entry*atrMul), of(entry*1.02), of(entry*0.97))
					sig, err := s.Synthesize(sn, outcomeFor(t, dir, key))
					if err != nil {
						continue
					}
					if !sig.GeometryValid() {
						t.Fatalf("invalid geometry emitted: %+v", sig)
					}
				}
			}
		}
	}
}

func TestProvenance(t *testing.T) {
	sig, err := newSynth(DefaultParams()).Synthesize(snap(of(100), of(2), na, na), outcomeFor(t, model.Long, model.TierLow))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Dir=LONG", "Tier=LOW", "Score=0.9167 (22/24)",
		"30m:EMA21=NA", "TF_RSI=5m:RSI=NA", "ATR15m=2.000000", "BS15m=0.700000",
		"RulesPassed=htf_trend", "RulesFailed=confluence", "Reasons=htf_trend:gap ok|confluence:agree=1/4",
	} {
		if !strings.Contains(sig.Provenance, want) {
			t.Errorf("provenance missing %q:\n%s", want, sig.Provenance)
		}
	}
}
