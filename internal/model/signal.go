package model

import (
	"encoding/json"
	"time"
)

// Direction is the side of a trade idea.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Valid reports whether d is LONG or SHORT.
func (d Direction) Valid() bool { return d == Long || d == Short }

// Directions lists both sides in evaluation order.
var Directions = []Direction{Long, Short}

// TierKey names a risk tier.
type TierKey string

const (
	TierLow    TierKey = "LOW"
	TierMedium TierKey = "MEDIUM"
	TierHigh   TierKey = "HIGH"
)

// Status is the lifecycle state of a signal.
// OPEN is the only non-terminal state.
type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusTPHit        Status = "TP_HIT"
	StatusStopHit      Status = "STOP_HIT"
	StatusClosedManual Status = "CLOSED_MANUAL"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusTPHit || s == StatusStopHit || s == StatusClosedManual
}

// Signal is an issued trade idea and, after settlement, its outcome.
type Signal struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Tier         TierKey   `json:"tier"`
	Entry        float64   `json:"entry_price"`
	Stop         float64   `json:"stop_loss"`
	Target       float64   `json:"take_profit"`
	IssuedAt     time.Time `json:"issued_at"`
	Status       Status    `json:"status"`
	HitTime      time.Time `json:"hit_time,omitzero"`
	HitPrice     float64   `json:"hit_price,omitempty"`
	Fee          float64   `json:"fee"`
	FinalPnL     float64   `json:"final_pnl"`
	PositionSize float64   `json:"position_size"`
	ReturnPct    float64   `json:"return_pct"`
	Provenance   string    `json:"provenance"`
}

// GeometryValid reports whether stop is strictly on the loss side of entry
// and target strictly on the profit side.
func (s *Signal) GeometryValid() bool {
	if s.Entry <= 0 || s.Target <= 0 || s.Stop <= 0 {
		return false
	}
	switch s.Direction {
	case Long:
		return s.Stop < s.Entry && s.Target > s.Entry
	case Short:
		return s.Stop > s.Entry && s.Target < s.Entry
	}
	return false
}

// SignalStreamKey returns the Redis stream key for a ledger day: "signals:{day}".
func SignalStreamKey(day string) string {
	return "signals:" + day
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
