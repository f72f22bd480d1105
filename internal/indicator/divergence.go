package indicator

// DivergenceInput is the series the divergence heuristic compares.
// All series are oldest first; only their tails are consulted.
type DivergenceInput struct {
	Closes []float64
	RSI    []float64
	Hist   []float64
}

// Divergence flags a likely divergence when the sign of the price change
// over lookback steps disagrees with the sign of the RSI change or the
// MACD-histogram change over the same steps. A flat price never diverges.
// At least one oscillator series must be long enough.
func Divergence(in DivergenceInput, lookback int) (bool, error) {
	if err := require("divergence.price", len(in.Closes), lookback+1); err != nil {
		return false, err
	}
	price := sign(delta(in.Closes, lookback))
	haveRSI := len(in.RSI) >= lookback+1
	haveHist := len(in.Hist) >= lookback+1
	if !haveRSI && !haveHist {
		return false, &DataInsufficientError{Indicator: "divergence.oscillator", Have: len(in.RSI), Need: lookback + 1}
	}
	if price == 0 {
		return false, nil
	}
	if haveRSI && sign(delta(in.RSI, lookback)) == -price {
		return true, nil
	}
	if haveHist && sign(delta(in.Hist, lookback)) == -price {
		return true, nil
	}
	return false, nil
}

func delta(xs []float64, lookback int) float64 {
	return xs[len(xs)-1] - xs[len(xs)-1-lookback]
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
