package indicator

import (
	"math"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

const bodyEpsilon = 1e-12

// BodyStrength returns |close-open| / max(high-low, ε), clamped to [0, 1].
func BodyStrength(c model.Candle) float64 {
	rng := math.Max(c.High-c.Low, bodyEpsilon)
	bs := math.Abs(c.Close-c.Open) / rng
	if bs < 0 {
		return 0
	}
	if bs > 1 {
		return 1
	}
	return bs
}

// SwingLevels returns the highest high and lowest low over the lookback
// candles preceding the most recent one.
func SwingLevels(cs []model.Candle, lookback int) (high, low Value) {
	if lookback <= 0 || len(cs) < lookback+1 {
		return Unavailable, Unavailable
	}
	window := cs[len(cs)-1-lookback : len(cs)-1]
	hi, lo := window[0].High, window[0].Low
	for _, c := range window[1:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	return Of(hi), Of(lo)
}

// Structure is a fuzzy higher-highs/higher-lows test. Over the last count
// candles it reports whether highs and lows are non-decreasing (LONG) or
// non-increasing (SHORT), allowing each step to deviate by the
// multiplicative tolerance.
func Structure(cs []model.Candle, count int, dir model.Direction, tolerance float64) (bool, error) {
	if err := require("structure", len(cs), count); err != nil {
		return false, err
	}
	if count < 2 {
		return false, &DataInsufficientError{Indicator: "structure", Have: count, Need: 2}
	}
	w := cs[len(cs)-count:]
	for i := 1; i < len(w); i++ {
		prev, cur := w[i-1], w[i]
		if dir == model.Long {
			if cur.High < prev.High*(1-tolerance) || cur.Low < prev.Low*(1-tolerance) {
				return false, nil
			}
			continue
		}
		if cur.High > prev.High*(1+tolerance) || cur.Low > prev.Low*(1+tolerance) {
			return false, nil
		}
	}
	return true, nil
}

// VolumeSpike returns the last candle's volume over the mean volume of the
// lookback candles before it.
func VolumeSpike(cs []model.Candle, lookback int) Value {
	if lookback <= 0 || len(cs) < lookback+1 {
		return Unavailable
	}
	vols := make([]float64, lookback)
	for i, c := range cs[len(cs)-1-lookback : len(cs)-1] {
		vols[i] = c.Volume
	}
	avg := Mean(vols, lookback).Or(0)
	return Of(cs[len(cs)-1].Volume / math.Max(avg, bodyEpsilon))
}

// Slope returns the relative change of series over the last lookback steps:
// (s[n-1] - s[n-1-lookback]) / |s[n-1-lookback]|.
func Slope(series []float64, lookback int) Value {
	if lookback <= 0 || len(series) < lookback+1 {
		return Unavailable
	}
	base := series[len(series)-1-lookback]
	if base == 0 {
		return Unavailable
	}
	return Of((series[len(series)-1] - base) / math.Abs(base))
}
