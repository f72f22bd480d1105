package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/strategy"
)

// logSnapshot writes one line per timeframe with the indicator readings.
func logSnapshot(log zerolog.Logger, snap *indicator.Snapshot) {
	for _, tf := range model.DecisionTimeframes {
		f := snap.Frame(tf)
		if f.Insufficient {
			log.Info().Str("tf", tf.String()).Int("candles", f.Candles).Msg("timeframe unavailable")
			continue
		}
		log.Info().
			Str("tf", tf.String()).
			Int("candles", f.Candles).
			Stringer("close", f.LastClose).
			Stringer("ema21", f.EMAAt(21)).
			Stringer("ema55", f.EMAAt(55)).
			Stringer("rsi", f.RSI).
			Stringer("macd_hist", f.MACD.Hist).
			Stringer("atr", f.ATR).
			Stringer("body_strength", f.BodyStrength).
			Int("gaps", len(f.Gaps)).
			Msg("indicators")
	}
}

// logDecision writes the per-tier rule counts of one direction.
func logDecision(log zerolog.Logger, d strategy.Decision) {
	tiers := make([]string, 0, len(d.Outcomes))
	for i := range d.Outcomes {
		o := &d.Outcomes[i]
		mark := ""
		if o.Passed {
			mark = "*"
		}
		tiers = append(tiers, fmt.Sprintf("%s=%d/%d(%.2f)%s", o.Tier.Key, o.PassedCount(), len(o.Results), o.Fraction(), mark))
	}
	ev := log.Info().Str("direction", string(d.Direction)).Str("tiers", strings.Join(tiers, " "))
	if d.Selected != nil {
		ev = ev.Str("selected", string(d.Selected.Tier.Key))
	}
	ev.Msg("decision")
}
