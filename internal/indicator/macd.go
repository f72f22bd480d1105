package indicator

import "math"

// MACDResult holds the latest MACD readings.
type MACDResult struct {
	Line   Value
	Signal Value
	Hist   Value
	// HistAbsAvg is the mean |histogram| over the readings preceding the
	// latest one, used for the strength bonus.
	HistAbsAvg Value
	// HistSeries is the full histogram series, oldest first.
	HistSeries []float64
}

// MACD computes line = EMA(fast) - EMA(slow), signal = EMA(line, signal)
// and hist = line - signal. Outputs whose inputs are missing stay
// unavailable. avgLookback sizes the HistAbsAvg window.
func MACD(values []float64, fast, slow, signal, avgLookback int) MACDResult {
	var res MACDResult
	fastS := EMASeries(values, fast)
	slowS := EMASeries(values, slow)
	if len(fastS) == 0 || len(slowS) == 0 {
		return res
	}

	// align both series on their common tail
	n := len(fastS)
	if len(slowS) < n {
		n = len(slowS)
	}
	fastS = fastS[len(fastS)-n:]
	slowS = slowS[len(slowS)-n:]
	line := make([]float64, n)
	for i := range line {
		line[i] = fastS[i] - slowS[i]
	}
	res.Line = Last(line)

	sig := EMASeries(line, signal)
	if len(sig) == 0 {
		return res
	}
	res.Signal = Last(sig)

	tail := line[len(line)-len(sig):]
	hist := make([]float64, len(sig))
	for i := range hist {
		hist[i] = tail[i] - sig[i]
	}
	res.Hist = Last(hist)
	res.HistSeries = hist

	if avgLookback > 0 && len(hist) >= avgLookback+1 {
		prev := hist[len(hist)-1-avgLookback : len(hist)-1]
		sum := 0.0
		for _, h := range prev {
			sum += math.Abs(h)
		}
		res.HistAbsAvg = Of(sum / float64(avgLookback))
	}
	return res
}
