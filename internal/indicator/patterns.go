package indicator

import (
	"math"
	"sort"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// Pattern names reported by DoubleTopBottom.
const (
	PatternNone         = ""
	PatternDoubleTop    = "DoubleTop"
	PatternDoubleBottom = "DoubleBottom"
)

// Pullback reports whether the last close retraced against dir within the
// lookback window: below the window's prior max for LONG, above its prior
// min for SHORT.
func Pullback(closes []float64, dir model.Direction, lookback int) bool {
	if lookback < 2 || len(closes) < lookback {
		return false
	}
	w := closes[len(closes)-lookback:]
	last, prior := w[len(w)-1], w[:len(w)-1]
	if dir == model.Long {
		hi := prior[0]
		for _, v := range prior[1:] {
			hi = math.Max(hi, v)
		}
		return last < hi
	}
	lo := prior[0]
	for _, v := range prior[1:] {
		lo = math.Min(lo, v)
	}
	return last > lo
}

// DoubleTopBottom checks whether the two highest (or two lowest) closes of
// the window are within tolerance of each other. Tops are checked first.
func DoubleTopBottom(closes []float64, lookback int, tolerance float64) string {
	if lookback < 2 || len(closes) < lookback {
		return PatternNone
	}
	w := append([]float64(nil), closes[len(closes)-lookback:]...)
	sort.Float64s(w)
	top1, top2 := w[len(w)-2], w[len(w)-1]
	if top1 != 0 && math.Abs(top1-top2)/math.Abs(top1) <= tolerance {
		return PatternDoubleTop
	}
	lo1, lo2 := w[0], w[1]
	if lo1 != 0 && math.Abs(lo1-lo2)/math.Abs(lo1) <= tolerance {
		return PatternDoubleBottom
	}
	return PatternNone
}
