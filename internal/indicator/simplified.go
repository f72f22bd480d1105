package indicator

import (
	"math"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// The indicators in this file are single-window approximations, not the
// textbook multi-bar smoothed forms. Rule thresholds are tuned against
// these approximations, so they are kept as heuristics.

// ADXResult holds the simplified directional readings.
type ADXResult struct {
	ADX     Value
	PlusDI  Value
	MinusDI Value
}

// ADX sums +DM, -DM and true range over the last period steps and returns
// DX of that single window as the ADX reading. Needs period+1 candles.
func ADX(cs []model.Candle, period int) ADXResult {
	if period <= 0 || len(cs) < period+1 {
		return ADXResult{}
	}
	w := cs[len(cs)-period-1:]
	var plusDM, minusDM, trSum float64
	for i := 1; i < len(w); i++ {
		up := w[i].High - w[i-1].High
		down := w[i-1].Low - w[i].Low
		if up > down && up > 0 {
			plusDM += up
		}
		if down > up && down > 0 {
			minusDM += down
		}
	}
	for _, tr := range TrueRange(w) {
		trSum += tr
	}
	if trSum == 0 {
		return ADXResult{ADX: Of(0), PlusDI: Of(0), MinusDI: Of(0)}
	}
	pdi := 100 * plusDM / trSum
	mdi := 100 * minusDM / trSum
	dx := 0.0
	if pdi+mdi > 0 {
		dx = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}
	return ADXResult{ADX: Of(dx), PlusDI: Of(pdi), MinusDI: Of(mdi)}
}

// CCI is (TP - SMA(TP)) / (0.015 * meanDeviation) over the last period
// typical prices. A zero mean deviation yields 0.
func CCI(cs []model.Candle, period int) Value {
	if period <= 0 || len(cs) < period {
		return Unavailable
	}
	w := cs[len(cs)-period:]
	tp := make([]float64, len(w))
	for i, c := range w {
		tp[i] = (c.High + c.Low + c.Close) / 3
	}
	avg := Mean(tp, period).Or(0)
	md := 0.0
	for _, v := range tp {
		md += math.Abs(v - avg)
	}
	md /= float64(period)
	if md == 0 {
		return Of(0)
	}
	return Of((tp[len(tp)-1] - avg) / (0.015 * md))
}

// StochResult holds %K and %D.
type StochResult struct {
	K Value
	D Value
}

// Stochastic computes %K over a kPeriod window for each of the last
// dPeriod candles and %D as their plain mean. A flat window reads 50.
func Stochastic(cs []model.Candle, kPeriod, dPeriod int) StochResult {
	if kPeriod <= 0 || dPeriod <= 0 || len(cs) < kPeriod+dPeriod-1 {
		return StochResult{}
	}
	ks := make([]float64, 0, dPeriod)
	for end := len(cs) - dPeriod + 1; end <= len(cs); end++ {
		w := cs[end-kPeriod : end]
		hh, ll := w[0].High, w[0].Low
		for _, c := range w[1:] {
			hh = math.Max(hh, c.High)
			ll = math.Min(ll, c.Low)
		}
		k := 50.0
		if hh > ll {
			k = 100 * (w[len(w)-1].Close - ll) / (hh - ll)
		}
		ks = append(ks, k)
	}
	return StochResult{K: Of(ks[len(ks)-1]), D: Mean(ks, dPeriod)}
}

// SARResult holds the simplified stop-and-reverse level.
type SARResult struct {
	Level  Value
	Rising bool
}

// SAR treats the window as rising when its last close is at or above its
// first close. A rising window places the level at the window's lowest low,
// a falling one at its highest high.
func SAR(cs []model.Candle, period int) SARResult {
	if period < 2 || len(cs) < period {
		return SARResult{}
	}
	w := cs[len(cs)-period:]
	hh, ll := w[0].High, w[0].Low
	for _, c := range w[1:] {
		hh = math.Max(hh, c.High)
		ll = math.Min(ll, c.Low)
	}
	if w[len(w)-1].Close >= w[0].Close {
		return SARResult{Level: Of(ll), Rising: true}
	}
	return SARResult{Level: Of(hh), Rising: false}
}
