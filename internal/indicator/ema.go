package indicator

// EMA calculates Exponential Moving Average.
// O(1) per update, with no window storage.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.period > 0 && e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

// EMASeries returns the EMA over values, one element per input from index
// period-1 onward. The first element is the SMA seed. Nil when
// len(values) < period.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	e := NewEMA(period)
	out := make([]float64, 0, len(values)-period+1)
	for _, v := range values {
		e.Update(v)
		if e.Ready() {
			out = append(out, e.Value())
		}
	}
	return out
}

// EMAValue returns the latest EMA reading.
func EMAValue(values []float64, period int) Value {
	return Last(EMASeries(values, period))
}
