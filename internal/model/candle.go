package model

import (
	"encoding/json"
	"time"
)

// Candle is one OHLCV bar of a (symbol, timeframe) series.
// Series are ordered ascending by TS with no duplicate timestamps.
type Candle struct {
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range returns high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close prices of a series.
func Closes(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Timeframe identifies a candle resolution.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

// DecisionTimeframes are the resolutions fetched for every live evaluation.
var DecisionTimeframes = []Timeframe{TF5m, TF15m, TF30m, TF1h, TF4h}

// Duration returns the bar length. Unknown timeframes return 0.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	}
	return 0
}

// Valid reports whether tf is one of the known resolutions.
func (tf Timeframe) Valid() bool { return tf.Duration() > 0 }

func (tf Timeframe) String() string { return string(tf) }
