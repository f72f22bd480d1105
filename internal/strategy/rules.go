package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/risk"
)

// Rule names, in battery order.
const (
	RuleHTFTrend       = "htf_trend"
	RuleMTFAlignment   = "mtf_alignment"
	RuleCandleStrength = "candle_strength"
	RuleEntryTrigger   = "entry_trigger"
	RuleRSIMomentum    = "rsi_momentum"
	RuleMACDMomentum   = "macd_momentum"
	RuleDivergenceGate = "divergence_gate"
	RuleExtremityGuard = "extremity_guard"
	RuleConfluence     = "confluence"
)

// DefaultRules returns the standard nine-rule battery.
func DefaultRules() []Rule {
	return []Rule{
		htfTrend{},
		mtfAlignment{},
		candleStrength{},
		entryTrigger{},
		rsiMomentum{},
		macdMomentum{},
		divergenceGate{},
		extremityGuard{},
		confluence{},
	}
}

// onSide reports whether a is on dir's side of b (a >= b for LONG).
func onSide(dir model.Direction, a, b float64) bool {
	if dir == model.Short {
		return a <= b
	}
	return a >= b
}

// strictlyOnSide is onSide without equality.
func strictlyOnSide(dir model.Direction, a, b float64) bool {
	if dir == model.Short {
		return a < b
	}
	return a > b
}

func gapPct(fast, slow float64) float64 {
	return math.Abs(fast-slow) / math.Max(math.Abs(slow), 1e-12)
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

// ── 1. higher-timeframe trend ──

type htfTrend struct{}

func (htfTrend) Name() string            { return RuleHTFTrend }
func (htfTrend) Category() risk.Category { return risk.CatTrend }

func (htfTrend) Evaluate(in Input) Verdict {
	ok := true
	parts := make([]string, 0, len(in.Params.TrendTFs)+1)
	for _, tf := range in.Params.TrendTFs {
		pass, detail := trendOn(in.Snap.Frame(tf), in.Dir, in.Tier.EMAGapMin.For(tf))
		ok = ok && pass
		parts = append(parts, tf.String()+": "+detail)
	}
	if in.Tier.Require200On4h {
		f := in.Snap.Frame(model.TF4h)
		c, okC := f.LastClose.Get()
		e200, okE := f.EMAAt(200).Get()
		pass := okC && okE && onSide(in.Dir, c, e200)
		ok = ok && pass
		parts = append(parts, fmt.Sprintf("4h: close=%s EMA200=%s", f.LastClose, f.EMAAt(200)))
	}
	return Verdict{Passed: ok, Detail: strings.Join(parts, "; ")}
}

func trendOn(f *indicator.Frame, dir model.Direction, floor float64) (bool, string) {
	e21, ok21 := f.EMAAt(21).Get()
	e55, ok55 := f.EMAAt(55).Get()
	if ok21 && ok55 {
		g := gapPct(e21, e55)
		pass := strictlyOnSide(dir, e21, e55) && g >= floor
		return pass, fmt.Sprintf("EMA21=%s EMA55=%s gap=%s [min %s]", f.EMAAt(21), f.EMAAt(55), pct(g), pct(floor))
	}
	if f.Insufficient || f.StructureErr != nil {
		return false, "EMA21/55=NA structure=NA"
	}
	pass := f.StructureUp
	if dir == model.Short {
		pass = f.StructureDown
	}
	return pass, fmt.Sprintf("EMA21/55=NA structure=%v", pass)
}

// ── 2. mid-timeframe alignment ──

type mtfAlignment struct{}

func (mtfAlignment) Name() string            { return RuleMTFAlignment }
func (mtfAlignment) Category() risk.Category { return risk.CatAlignment }

func (mtfAlignment) Evaluate(in Input) Verdict {
	f := in.Snap.Frame(in.Params.AlignmentTF)
	c, okC := f.LastClose.Get()
	e21, okE := f.EMAAt(21).Get()
	slope, okS := f.EMASlope.Get()

	side := okC && okE && onSide(in.Dir, c, e21)
	trending := okS && slope*in.Dir.Sign() >= in.Tier.EMASlopeMin
	ok := side && trending
	detail := fmt.Sprintf("close=%s EMA21=%s slope=%s [min %s]",
		f.LastClose, f.EMAAt(21), slopeStr(f.EMASlope), pct(in.Tier.EMASlopeMin))

	if in.Tier.RequireFastCross {
		e8, ok8 := f.EMAAt(8).Get()
		cross := ok8 && okE && onSide(in.Dir, e8, e21)
		ok = ok && cross
		detail += fmt.Sprintf(" EMA8=%s cross=%v", f.EMAAt(8), cross)
	}
	return Verdict{Passed: ok, Detail: detail}
}

func slopeStr(v indicator.Value) string {
	s, ok := v.Get()
	if !ok {
		return "NA"
	}
	return pct(s)
}

// ── 3. decision-candle strength ──

type candleStrength struct{}

func (candleStrength) Name() string            { return RuleCandleStrength }
func (candleStrength) Category() risk.Category { return risk.CatCandle }

func (candleStrength) Evaluate(in Input) Verdict {
	f := in.Snap.Frame(in.Params.CandleTF)
	bs, ok := f.BodyStrength.Get()
	return Verdict{
		Passed: ok && bs >= in.Tier.CandleStrengthMin,
		Detail: fmt.Sprintf("BS%s=%s [min %.2f]", in.Params.CandleTF, bsStr(f.BodyStrength), in.Tier.CandleStrengthMin),
	}
}

func bsStr(v indicator.Value) string {
	b, ok := v.Get()
	if !ok {
		return "NA"
	}
	return fmt.Sprintf("%.3f", b)
}

// ── 4. entry trigger ──

type entryTrigger struct{}

func (entryTrigger) Name() string            { return RuleEntryTrigger }
func (entryTrigger) Category() risk.Category { return risk.CatEntry }

func (entryTrigger) Evaluate(in Input) Verdict {
	f := in.Snap.Frame(in.Params.EntryTF)
	tol := in.Tier.EntryBreakTolerance
	c, okC := f.LastClose.Get()

	level := f.SwingHigh
	if in.Dir == model.Short {
		level = f.SwingLow
	}
	lv, okL := level.Get()
	broke := false
	if okC && okL {
		if in.Dir == model.Long {
			broke = c >= lv*(1-tol)
		} else {
			broke = c <= lv*(1+tol)
		}
	}
	spike, okV := f.VolumeSpike.Get()
	volume := okV && spike >= in.Tier.VolumeSpikeMin

	return Verdict{
		Passed: broke && volume,
		Detail: fmt.Sprintf("close=%s swing=%s tol=%s break=%v vol=%s [min %.2fx]",
			f.LastClose, level, pct(tol), broke, spikeStr(f.VolumeSpike), in.Tier.VolumeSpikeMin),
	}
}

func spikeStr(v indicator.Value) string {
	s, ok := v.Get()
	if !ok {
		return "NA"
	}
	return fmt.Sprintf("%.2fx", s)
}

// ── 5. RSI momentum count ──

type rsiMomentum struct{}

func (rsiMomentum) Name() string            { return RuleRSIMomentum }
func (rsiMomentum) Category() risk.Category { return risk.CatMomentum }

func (rsiMomentum) Evaluate(in Input) Verdict {
	t := in.Tier
	agree, strong := 0, 0
	vals := make([]string, 0, len(in.Params.MomentumTFs))
	for _, tf := range in.Params.MomentumTFs {
		f := in.Snap.Frame(tf)
		r, ok := f.RSI.Get()
		if !ok {
			vals = append(vals, tf.String()+"=NA")
			continue
		}
		vals = append(vals, fmt.Sprintf("%s=%.2f", tf, r))
		if in.Dir == model.Long {
			if r >= t.RSILong {
				agree++
				if r >= t.RSIStrongLong {
					strong++
				}
			}
		} else if r <= t.RSIShort {
			agree++
			if r <= t.RSIStrongShort {
				strong++
			}
		}
	}
	bonus := min(strong, t.StrengthBonus)
	return Verdict{
		Passed: agree+bonus >= t.RSICountMin,
		Detail: fmt.Sprintf("agree=%d/%d strong=%d bonus=%d [min %d] %s",
			agree, len(in.Params.MomentumTFs), strong, bonus, t.RSICountMin, strings.Join(vals, " ")),
	}
}

// ── 6. MACD momentum count ──

type macdMomentum struct{}

func (macdMomentum) Name() string            { return RuleMACDMomentum }
func (macdMomentum) Category() risk.Category { return risk.CatMomentum }

func (macdMomentum) Evaluate(in Input) Verdict {
	m := macdStrength(in)
	bonus := min(m.strong, in.Tier.StrengthBonus)
	return Verdict{
		Passed: m.agree+bonus >= in.Tier.MACDCountMin,
		Detail: fmt.Sprintf("agree=%d/%d strong=%d bonus=%d [min %d] %s",
			m.agree, len(in.Params.MomentumTFs), m.strong, bonus, in.Tier.MACDCountMin, strings.Join(m.vals, " ")),
	}
}

type macdCount struct {
	agree  int
	strong int
	vals   []string
}

// macdStrength counts momentum timeframes whose histogram agrees with the
// direction and clears the relative floor. Agreeing histograms larger than
// their recent mean magnitude times MACDStrongMult are also strong.
func macdStrength(in Input) macdCount {
	t := in.Tier
	out := macdCount{vals: make([]string, 0, len(in.Params.MomentumTFs))}
	for _, tf := range in.Params.MomentumTFs {
		f := in.Snap.Frame(tf)
		h, okH := f.MACD.Hist.Get()
		c, okC := f.LastClose.Get()
		if !okH || !okC || c == 0 {
			out.vals = append(out.vals, tf.String()+"=NA")
			continue
		}
		out.vals = append(out.vals, fmt.Sprintf("%s=%s", tf, f.MACD.Hist))
		if h*in.Dir.Sign() <= 0 || math.Abs(h)/c < t.MACDHistMin {
			continue
		}
		out.agree++
		if avg, ok := f.MACD.HistAbsAvg.Get(); ok && math.Abs(h) > avg*t.MACDStrongMult {
			out.strong++
		}
	}
	return out
}

// ── 7. divergence gate ──

type divergenceGate struct{}

func (divergenceGate) Name() string            { return RuleDivergenceGate }
func (divergenceGate) Category() risk.Category { return risk.CatGuard }

func (divergenceGate) Evaluate(in Input) Verdict {
	ok := true
	parts := make([]string, 0, len(in.Params.DecisionTFs))
	for _, tf := range in.Params.DecisionTFs {
		f := in.Snap.Frame(tf)
		switch {
		case f.Insufficient || f.DivergenceErr != nil:
			ok = false
			parts = append(parts, tf.String()+"=NA")
		case f.Divergence:
			ok = false
			parts = append(parts, tf.String()+"=true")
		default:
			parts = append(parts, tf.String()+"=false")
		}
	}
	return Verdict{Passed: ok, Detail: "divergence " + strings.Join(parts, " ")}
}

// ── 8. extremity guard ──

type extremityGuard struct{}

func (extremityGuard) Name() string            { return RuleExtremityGuard }
func (extremityGuard) Category() risk.Category { return risk.CatGuard }

func (extremityGuard) Evaluate(in Input) Verdict {
	t := in.Tier
	missing, extreme := false, false
	parts := make([]string, 0, len(in.Params.DecisionTFs))
	for _, tf := range in.Params.DecisionTFs {
		r, ok := in.Snap.Frame(tf).RSI.Get()
		if !ok {
			missing = true
			parts = append(parts, tf.String()+"=NA")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%.2f", tf, r))
		if (in.Dir == model.Long && r > t.RSIExtremeHigh) || (in.Dir == model.Short && r < t.RSIExtremeLow) {
			extreme = true
		}
	}
	band := fmt.Sprintf("[band >%.0f <%.0f]", t.RSIExtremeHigh, t.RSIExtremeLow)
	if missing {
		return Verdict{Passed: false, Detail: "RSI " + strings.Join(parts, " ") + " " + band}
	}
	if !extreme {
		return Verdict{Passed: true, Detail: "RSI " + strings.Join(parts, " ") + " " + band}
	}
	strong := macdStrength(in).strong
	return Verdict{
		Passed: strong >= t.ExtremeOverrideCount,
		Detail: fmt.Sprintf("RSI %s %s saturated, strong MACD=%d [override %d]",
			strings.Join(parts, " "), band, strong, t.ExtremeOverrideCount),
	}
}

// ── 9. ADX/CCI/Stochastic/SAR confluence ──

type confluence struct{}

func (confluence) Name() string            { return RuleConfluence }
func (confluence) Category() risk.Category { return risk.CatConfluence }

func (confluence) Evaluate(in Input) Verdict {
	f := in.Snap.Frame(in.Params.ConfluenceTF)
	long := in.Dir == model.Long
	n := 0

	adxOK := false
	if adx, ok := f.ADX.ADX.Get(); ok && adx >= in.Tier.ADXMin {
		pdi, _ := f.ADX.PlusDI.Get()
		mdi, _ := f.ADX.MinusDI.Get()
		adxOK = (long && pdi > mdi) || (!long && mdi > pdi)
	}

	cciOK := false
	if cci, ok := f.CCI.Get(); ok {
		cciOK = cci*in.Dir.Sign() > 0
	}

	stochOK := false
	k, okK := f.Stoch.K.Get()
	d, okD := f.Stoch.D.Get()
	if okK && okD {
		if long {
			stochOK = k > d && k < in.Params.StochOverbought
		} else {
			stochOK = k < d && k > in.Params.StochOversold
		}
	}

	sarOK := false
	lv, okS := f.SAR.Level.Get()
	c, okC := f.LastClose.Get()
	if okS && okC {
		sarOK = (long && f.SAR.Rising && lv < c) || (!long && !f.SAR.Rising && lv > c)
	}

	for _, b := range []bool{adxOK, cciOK, stochOK, sarOK} {
		if b {
			n++
		}
	}
	return Verdict{
		Passed: n >= in.Tier.ConfluenceMin,
		Detail: fmt.Sprintf("agree=%d/4 [min %d] ADX=%s(%v) CCI=%s(%v) K=%s D=%s(%v) SAR=%s(%v)",
			n, in.Tier.ConfluenceMin, f.ADX.ADX, adxOK, f.CCI, cciOK, f.Stoch.K, f.Stoch.D, stochOK, f.SAR.Level, sarOK),
	}
}
