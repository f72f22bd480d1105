package synthesizer

import (
	"fmt"
	"strings"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/strategy"
)

// Provenance renders every indicator value consulted and every rule verdict
// as a single audit line. Unavailable readings render as NA.
//
//	Dir=LONG | Tier=MEDIUM | Score=0.9167 (22/24) | Pricing=atr | TF_EMA=... |
//	TF_RSI=... | TF_MACD=... | ATR15m=... | BS15m=... | Swing5m=... |
//	Patterns=... | RulesPassed=a;b | RulesFailed=c | Reasons=a:...|b:...
func Provenance(snap *indicator.Snapshot, o strategy.Outcome, stage string, p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dir=%s | Tier=%s | Score=%.4f (%g/%g) | Pricing=%s",
		o.Direction, o.Tier.Key, o.Fraction(), o.PassedWeight, o.TotalWeight, stage)

	ema := make([]string, 0, 6)
	for _, tf := range []model.Timeframe{model.TF30m, model.TF1h, model.TF4h} {
		f := snap.Frame(tf)
		ema = append(ema, fmt.Sprintf("%s:EMA21=%s", tf, f.EMAAt(21)), fmt.Sprintf("%s:EMA55=%s", tf, f.EMAAt(55)))
	}
	b.WriteString(" | TF_EMA=" + strings.Join(ema, ","))

	rsi := make([]string, 0, len(model.DecisionTimeframes))
	macd := make([]string, 0, 2*len(model.DecisionTimeframes))
	for _, tf := range model.DecisionTimeframes {
		f := snap.Frame(tf)
		rsi = append(rsi, fmt.Sprintf("%s:RSI=%s", tf, f.RSI))
		macd = append(macd, fmt.Sprintf("%s:MACD=%s", tf, f.MACD.Line), fmt.Sprintf("%s:HIST=%s", tf, f.MACD.Hist))
	}
	b.WriteString(" | TF_RSI=" + strings.Join(rsi, ","))
	b.WriteString(" | TF_MACD=" + strings.Join(macd, ","))

	atrF := snap.Frame(p.ATRTF)
	fmt.Fprintf(&b, " | ATR%s=%s", p.ATRTF, atrF.ATR)
	fmt.Fprintf(&b, " | BS15m=%s", snap.Frame(model.TF15m).BodyStrength)
	sw := snap.Frame(p.SwingTF)
	fmt.Fprintf(&b, " | Swing%s=%s/%s", p.SwingTF, sw.SwingHigh, sw.SwingLow)

	patterns := make([]string, 0, 2)
	for _, tf := range []model.Timeframe{model.TF15m, model.TF30m} {
		f := snap.Frame(tf)
		if f.Pattern != "" {
			patterns = append(patterns, tf.String()+":"+f.Pattern)
		}
		if f.Pullback[o.Direction] {
			patterns = append(patterns, tf.String()+":Pullback")
		}
	}
	b.WriteString(" | Patterns=" + strings.Join(patterns, ","))

	var passed, failed, reasons []string
	for _, r := range o.Results {
		if r.Passed {
			passed = append(passed, r.Name)
		} else {
			failed = append(failed, r.Name)
		}
		reasons = append(reasons, r.Name+":"+r.Detail)
	}
	b.WriteString(" | RulesPassed=" + strings.Join(passed, ";"))
	b.WriteString(" | RulesFailed=" + strings.Join(failed, ";"))
	b.WriteString(" | Reasons=" + strings.Join(reasons, "|"))
	return b.String()
}
