package indicator

import (
	"math"
	"strconv"
)

// Value is an indicator reading that may be unavailable.
// The zero Value is unavailable; a real 0 is Of(0).
type Value struct {
	v  float64
	ok bool
}

// Unavailable is the explicit "no reading" marker.
var Unavailable = Value{}

// Of wraps a reading. NaN and Inf are treated as unavailable.
func Of(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Unavailable
	}
	return Value{v: v, ok: true}
}

// OK reports whether the reading is available.
func (v Value) OK() bool { return v.ok }

// Get returns the reading and whether it is available.
func (v Value) Get() (float64, bool) { return v.v, v.ok }

// Or returns the reading, or def when unavailable.
func (v Value) Or(def float64) float64 {
	if !v.ok {
		return def
	}
	return v.v
}

// Positive reports whether the reading is available and > 0.
func (v Value) Positive() bool { return v.ok && v.v > 0 }

// String renders the reading with 6 decimals, or "NA".
func (v Value) String() string {
	if !v.ok {
		return "NA"
	}
	return strconv.FormatFloat(v.v, 'f', 6, 64)
}

// Last returns the final element of xs, or Unavailable for an empty slice.
func Last(xs []float64) Value {
	if len(xs) == 0 {
		return Unavailable
	}
	return Of(xs[len(xs)-1])
}
