// Package settlement replays a day's open signals against 1-minute candles
// and records how each one ended.
package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// ErrDataGap marks a signal force-closed because no replay candles were
// available.
var ErrDataGap = errors.New("settlement: no replay candles")

// DataGapTag is appended to the provenance of force-closed signals.
const DataGapTag = " | Settlement=DATA_GAP"

// Params controls fills and costs.
type Params struct {
	FeeRate  float64         `yaml:"fee_rate" validate:"gte=0,lt=1"`
	Slippage float64         `yaml:"slippage" validate:"gte=0,lt=1"`
	ReplayTF model.Timeframe `yaml:"replay_tf"`
}

// DefaultParams returns broker fee 0.1% per side and 0.05% slippage on 1m bars.
func DefaultParams() Params {
	return Params{FeeRate: 0.001, Slippage: 0.0005, ReplayTF: model.TF1m}
}

// Resolve settles one signal against candles ordered ascending by time.
// Candles opening before the signal's issuance minute are ignored. The first
// candle touching the stop or the target decides the outcome; a candle touching
// both resolves to STOP_HIT. When nothing is touched the signal is closed at the
// last candle's close and stamped manualClose. With no usable candles it is
// closed flat at entry, fee still charged, and the returned error wraps
// ErrDataGap.
//
// Terminal signals are returned unchanged.
func Resolve(sig model.Signal, candles []model.Candle, manualClose time.Time, p Params) (model.Signal, error) {
	if sig.Status.Terminal() {
		return sig, nil
	}

	from := sig.IssuedAt.Truncate(time.Minute)
	var last *model.Candle
	for i := range candles {
		c := &candles[i]
		if c.TS.Before(from) {
			continue
		}
		last = c
		tp, sl := touches(sig, *c)
		switch {
		case sl:
			// both touched in one bar counts as a stop
			return fill(sig, model.StatusStopHit, c.TS, sig.Stop, exitPrice(sig, sig.Stop, p), p), nil
		case tp:
			return fill(sig, model.StatusTPHit, c.TS, sig.Target, exitPrice(sig, sig.Target, p), p), nil
		}
	}

	if last == nil {
		out := fill(sig, model.StatusClosedManual, manualClose, sig.Entry, sig.Entry, p)
		out.Provenance += DataGapTag
		return out, ErrDataGap
	}
	return fill(sig, model.StatusClosedManual, manualClose, last.Close, last.Close, p), nil
}

func touches(sig model.Signal, c model.Candle) (tp, sl bool) {
	if sig.Direction == model.Short {
		return c.Low <= sig.Target, c.High >= sig.Stop
	}
	return c.High >= sig.Target, c.Low <= sig.Stop
}

// exitPrice applies slippage against the holder: a LONG sells lower and a
// SHORT buys back higher, on either exit.
func exitPrice(sig model.Signal, level float64, p Params) float64 {
	if sig.Direction == model.Short {
		return level * (1 + p.Slippage)
	}
	return level * (1 - p.Slippage)
}

func fill(sig model.Signal, st model.Status, at time.Time, level, exit float64, p Params) model.Signal {
	size := decimal.NewFromFloat(sig.PositionSize)
	entry := decimal.NewFromFloat(sig.Entry)

	r := decimal.Zero
	if !entry.IsZero() {
		r = decimal.NewFromFloat(exit).Sub(entry).Div(entry)
		if sig.Direction == model.Short {
			r = r.Neg()
		}
	}
	fee := size.Mul(decimal.NewFromFloat(p.FeeRate)).Mul(decimal.NewFromInt(2))
	pnl := size.Mul(r).Sub(fee)

	sig.Status = st
	sig.HitTime = at
	sig.HitPrice = level
	sig.Fee = fee.Round(6).InexactFloat64()
	sig.FinalPnL = pnl.Round(6).InexactFloat64()
	sig.ReturnPct = r.Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
	return sig
}
