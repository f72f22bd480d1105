// Package indicator provides technical indicator calculations over candle data.
//
// Two layers live here. Smoothers (EMA, SMA, SMMA, RSI) are O(1)-per-update
// streaming recurrences. The series functions built on top of them are pure
// and deterministic: they take an ordered price or candle slice and return a
// Value, which is either a finite number or explicitly unavailable.
package indicator

// Smoother is the interface for the streaming recurrences.
type Smoother interface {
	// Name returns the smoother name (e.g. "EMA", "RSI").
	Name() string

	// Update feeds the next value of the series.
	Update(v float64)

	// Value returns the current value. Meaningless until Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears the state for reuse.
	Reset()
}
