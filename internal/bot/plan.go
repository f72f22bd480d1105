// Package bot runs the live evaluation cycle: fetch every timeframe of every
// symbol, evaluate both directions against the tier table and issue the
// qualifying signals.
package bot

import (
	"time"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// FetchWindow is how far back one timeframe is fetched.
type FetchWindow struct {
	TF       model.Timeframe
	Lookback time.Duration
}

const oneDay = 24 * time.Hour

// DefaultFetchPlan returns the lookback of every decision timeframe.
func DefaultFetchPlan() []FetchWindow {
	return []FetchWindow{
		{TF: model.TF5m, Lookback: 7 * oneDay},
		{TF: model.TF15m, Lookback: 7 * oneDay},
		{TF: model.TF30m, Lookback: 14 * oneDay},
		{TF: model.TF1h, Lookback: 30 * oneDay},
		{TF: model.TF4h, Lookback: 60 * oneDay},
	}
}

// window returns [from, to) ending at the open of the in-progress bar, so
// only closed candles are evaluated.
func (w FetchWindow) window(now time.Time) (from, to time.Time) {
	to = now.UTC().Truncate(w.TF.Duration())
	return to.Add(-w.Lookback), to
}
