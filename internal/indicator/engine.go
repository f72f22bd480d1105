package indicator

import (
	"fmt"
	"strconv"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// Params configures the snapshot builder.
type Params struct {
	MinCandles         int     `yaml:"min_candles" validate:"gte=1"`
	EMAPeriods         []int   `yaml:"ema_periods" validate:"min=1,dive,gte=1"`
	SlopePeriod        int     `yaml:"slope_period" validate:"gte=1"`
	SlopeLookback      int     `yaml:"slope_lookback" validate:"gte=1"`
	RSIPeriod          int     `yaml:"rsi_period" validate:"gte=2"`
	MACDFast           int     `yaml:"macd_fast" validate:"gte=1"`
	MACDSlow           int     `yaml:"macd_slow" validate:"gtfield=MACDFast"`
	MACDSignal         int     `yaml:"macd_signal" validate:"gte=1"`
	MACDAvgLookback    int     `yaml:"macd_avg_lookback" validate:"gte=1"`
	ATRPeriod          int     `yaml:"atr_period" validate:"gte=1"`
	ADXPeriod          int     `yaml:"adx_period" validate:"gte=1"`
	CCIPeriod          int     `yaml:"cci_period" validate:"gte=1"`
	StochK             int     `yaml:"stoch_k" validate:"gte=1"`
	StochD             int     `yaml:"stoch_d" validate:"gte=1"`
	SARPeriod          int     `yaml:"sar_period" validate:"gte=2"`
	SwingLookback      int     `yaml:"swing_lookback" validate:"gte=1"`
	StructureCount     int     `yaml:"structure_count" validate:"gte=2"`
	StructureTolerance float64 `yaml:"structure_tolerance" validate:"gte=0"`
	DivergenceLookback int     `yaml:"divergence_lookback" validate:"gte=1"`
	VolumeLookback     int     `yaml:"volume_lookback" validate:"gte=1"`
	PatternLookback    int     `yaml:"pattern_lookback" validate:"gte=2"`
	PatternTolerance   float64 `yaml:"pattern_tolerance" validate:"gte=0"`
}

// DefaultParams returns the builder defaults.
func DefaultParams() Params {
	return Params{
		MinCandles:         50,
		EMAPeriods:         []int{8, 21, 55, 200},
		SlopePeriod:        21,
		SlopeLookback:      3,
		RSIPeriod:          14,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		MACDAvgLookback:    10,
		ATRPeriod:          14,
		ADXPeriod:          14,
		CCIPeriod:          20,
		StochK:             14,
		StochD:             3,
		SARPeriod:          10,
		SwingLookback:      10,
		StructureCount:     5,
		StructureTolerance: 0.002,
		DivergenceLookback: 5,
		VolumeLookback:     20,
		PatternLookback:    10,
		PatternTolerance:   0.003,
	}
}

// Frame is the indicator snapshot of one (symbol, timeframe).
// Every numeric field is a Value; unavailable readings are listed in Gaps.
type Frame struct {
	TF      model.Timeframe
	Candles int
	Last    model.Candle

	LastClose    Value
	EMA          map[int]Value
	EMASlope     Value // relative slope of EMA(SlopePeriod)
	RSI          Value
	RSISeries    []float64
	MACD         MACDResult
	ATR          Value
	ADX          ADXResult
	CCI          Value
	Stoch        StochResult
	SAR          SARResult
	BodyStrength Value
	SwingHigh    Value
	SwingLow     Value
	VolumeSpike  Value

	StructureUp   bool
	StructureDown bool
	StructureErr  error
	Divergence    bool
	DivergenceErr error
	Pullback      map[model.Direction]bool
	Pattern       string

	// Insufficient is set when the frame had fewer than MinCandles candles
	// and nothing was computed.
	Insufficient bool
	Gaps         []error
}

// EMAAt returns EMA(period), or Unavailable when it was not computed.
func (f *Frame) EMAAt(period int) Value {
	if f == nil || f.EMA == nil {
		return Unavailable
	}
	return f.EMA[period]
}

// Snapshot bundles the frames of one symbol for one evaluation cycle.
type Snapshot struct {
	Symbol string
	Frames map[model.Timeframe]*Frame
}

// Frame returns the frame for tf. A missing timeframe yields an empty,
// insufficient frame so that dependent rules fail closed.
func (s *Snapshot) Frame(tf model.Timeframe) *Frame {
	if s != nil && s.Frames != nil {
		if f, ok := s.Frames[tf]; ok && f != nil {
			return f
		}
	}
	return &Frame{TF: tf, Insufficient: true}
}

// Builder computes frames from candle series. It holds no mutable state and
// is safe for concurrent use.
type Builder struct {
	p Params
}

// NewBuilder creates a snapshot builder.
func NewBuilder(p Params) *Builder {
	return &Builder{p: p}
}

// Params returns the builder configuration.
func (b *Builder) Params() Params { return b.p }

// Snapshot builds every frame for symbol. series must be ascending.
func (b *Builder) Snapshot(symbol string, series map[model.Timeframe][]model.Candle) *Snapshot {
	snap := &Snapshot{Symbol: symbol, Frames: make(map[model.Timeframe]*Frame, len(series))}
	for tf, cs := range series {
		snap.Frames[tf] = b.Frame(tf, cs)
	}
	return snap
}

// Frame computes the indicator frame for one series.
func (b *Builder) Frame(tf model.Timeframe, cs []model.Candle) *Frame {
	p := b.p
	f := &Frame{TF: tf, Candles: len(cs), EMA: make(map[int]Value, len(p.EMAPeriods))}
	if err := require("candles."+tf.String(), len(cs), max(p.MinCandles, 1)); err != nil {
		f.Insufficient = true
		f.Gaps = append(f.Gaps, err)
		return f
	}

	closes := model.Closes(cs)
	f.Last = cs[len(cs)-1]
	f.LastClose = Of(f.Last.Close)

	for _, period := range p.EMAPeriods {
		f.EMA[period] = b.track(f, "ema"+strconv.Itoa(period), len(closes), period, EMAValue(closes, period))
	}
	slopeSeries := EMASeries(closes, p.SlopePeriod)
	f.EMASlope = b.track(f, "ema_slope", len(slopeSeries), p.SlopeLookback+1, Slope(slopeSeries, p.SlopeLookback))

	f.RSISeries = RSISeries(closes, p.RSIPeriod)
	f.RSI = b.track(f, "rsi", len(closes), p.RSIPeriod+1, Last(f.RSISeries))

	f.MACD = MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal, p.MACDAvgLookback)
	b.track(f, "macd_hist", len(closes), p.MACDSlow+p.MACDSignal-1, f.MACD.Hist)

	f.ATR = b.track(f, "atr", len(cs), p.ATRPeriod+1, ATR(cs, p.ATRPeriod))
	f.ADX = ADX(cs, p.ADXPeriod)
	b.track(f, "adx", len(cs), p.ADXPeriod+1, f.ADX.ADX)
	f.CCI = b.track(f, "cci", len(cs), p.CCIPeriod, CCI(cs, p.CCIPeriod))
	f.Stoch = Stochastic(cs, p.StochK, p.StochD)
	b.track(f, "stoch", len(cs), p.StochK+p.StochD-1, f.Stoch.K)
	f.SAR = SAR(cs, p.SARPeriod)
	b.track(f, "sar", len(cs), p.SARPeriod, f.SAR.Level)

	f.BodyStrength = Of(BodyStrength(f.Last))
	f.SwingHigh, f.SwingLow = SwingLevels(cs, p.SwingLookback)
	b.track(f, "swing", len(cs), p.SwingLookback+1, f.SwingHigh)
	f.VolumeSpike = b.track(f, "volume_spike", len(cs), p.VolumeLookback+1, VolumeSpike(cs, p.VolumeLookback))

	var err error
	f.StructureUp, err = Structure(cs, p.StructureCount, model.Long, p.StructureTolerance)
	if err == nil {
		f.StructureDown, err = Structure(cs, p.StructureCount, model.Short, p.StructureTolerance)
	}
	if err != nil {
		f.StructureErr = err
		f.Gaps = append(f.Gaps, err)
	}

	f.Divergence, f.DivergenceErr = Divergence(DivergenceInput{
		Closes: closes,
		RSI:    f.RSISeries,
		Hist:   f.MACD.HistSeries,
	}, p.DivergenceLookback)
	if f.DivergenceErr != nil {
		f.Gaps = append(f.Gaps, f.DivergenceErr)
	}

	f.Pullback = map[model.Direction]bool{
		model.Long:  Pullback(closes, model.Long, p.PatternLookback),
		model.Short: Pullback(closes, model.Short, p.PatternLookback),
	}
	f.Pattern = DoubleTopBottom(closes, p.PatternLookback, p.PatternTolerance)
	return f
}

// track records a gap when v is unavailable and returns v unchanged.
func (b *Builder) track(f *Frame, name string, have, need int, v Value) Value {
	if !v.OK() {
		err := require(name, have, need)
		if err == nil {
			err = fmt.Errorf("%s: undefined reading", name)
		}
		f.Gaps = append(f.Gaps, err)
	}
	return v
}
