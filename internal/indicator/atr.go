package indicator

import (
	"math"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) for
// every candle after the first.
func TrueRange(cs []model.Candle) []float64 {
	if len(cs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(cs)-1)
	for i := 1; i < len(cs); i++ {
		pc := cs[i-1].Close
		tr := math.Max(cs[i].High-cs[i].Low,
			math.Max(math.Abs(cs[i].High-pc), math.Abs(cs[i].Low-pc)))
		out = append(out, tr)
	}
	return out
}

// ATR is the Wilder-smoothed true range. Needs period+1 candles.
func ATR(cs []model.Candle, period int) Value {
	tr := TrueRange(cs)
	if period <= 0 || len(tr) < period {
		return Unavailable
	}
	s := NewSMMA(period)
	for _, v := range tr {
		s.Update(v)
	}
	return Of(s.Value())
}
