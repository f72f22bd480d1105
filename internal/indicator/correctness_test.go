package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c, v float64) model.Candle {
	return model.Candle{TS: t0.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// flatBars returns candles closing at price with a ±0.5 range.
func flatBars(n int, price float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = bar(i, price, price+0.5, price-0.5, price, 100)
	}
	return out
}

// risingBars returns candles stepping up by step per bar.
func risingBars(n int, start, step float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := start + float64(i)*step
		out[i] = bar(i, p-step/2, p+step/2, p-step, p, 100)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func mustValue(t *testing.T, label string, v Value) float64 {
	t.Helper()
	f, ok := v.Get()
	if !ok {
		t.Fatalf("%s: expected available value", label)
	}
	return f
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after 3: (100+102+104)/3 = 102
	// SMA after 4: (102+104+103)/3 = 103
	// SMA after 5: (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestMean_TrailingWindow(t *testing.T) {
	assertClose(t, "Mean", mustValue(t, "Mean", Mean([]float64{1, 2, 3, 4, 5}, 2)), 4.5, 1e-12)
	if Mean([]float64{1}, 2).OK() {
		t.Error("expected unavailable mean for short series")
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Seed after 3 values: (100+102+104)/3 = 102.0
	// Value 4: 103*0.5 + 102.0*0.5 = 102.5
	// Value 5: 105*0.5 + 102.5*0.5 = 103.75
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMASeries_SeedAndRecurrence(t *testing.T) {
	// ema([1..10], 3): seed mean(1,2,3) = 2, then k = 0.5
	// 4 -> 3, 5 -> 4, ... each step lands one below the price
	series := EMASeries([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 3)
	want := []float64{2, 3, 4, 5, 6, 7, 8, 9}
	if len(series) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(series))
	}
	for i := range want {
		assertClose(t, "EMASeries", series[i], want[i], 1e-12)
	}
}

func TestEMA_UnavailableWhenShort(t *testing.T) {
	if EMAValue([]float64{1, 2}, 3).OK() {
		t.Error("expected EMA(3) over 2 values to be unavailable")
	}
	if EMASeries(nil, 3) != nil {
		t.Error("expected nil series for empty input")
	}
}

func TestEMA_Reset(t *testing.T) {
	ema := NewEMA(2)
	ema.Update(10)
	ema.Update(20)
	ema.Reset()
	if ema.Ready() {
		t.Error("expected not ready after Reset")
	}
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// Seed: (100+102+104)/3 = 102.0
	// Value 4: (102.0*2 + 103)/3 = 102.3333
	// Value 5: (102.3333*2 + 105)/3 = 103.2222
	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}
	for i, p := range prices {
		smma.Update(p)
		if i >= 2 {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_StrictlyIncreasing_Is100(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	assertClose(t, "RSI rising", mustValue(t, "RSI", RSIValue(prices, 14)), 100.0, 1e-12)
}

func TestRSI_Correctness_Period3(t *testing.T) {
	// Prices 10, 11, 10, 12, 11
	// deltas +1, -1, +2, -1
	// seed over first 3: avgGain = 3/3 = 1, avgLoss = 1/3
	//   RSI = 100 - 100/(1+3) = 75
	// step 4 (loss 1): avgGain = (1*2+0)/3 = 0.6667, avgLoss = (0.3333*2+1)/3 = 0.5556
	//   RSI = 100 - 100/(1+1.2) = 54.5455
	series := RSISeries([]float64{10, 11, 10, 12, 11}, 3)
	if len(series) != 2 {
		t.Fatalf("expected 2 RSI values, got %d", len(series))
	}
	assertClose(t, "RSI seed", series[0], 75.0, 0.0001)
	assertClose(t, "RSI step", series[1], 54.5455, 0.0001)
}

func TestRSI_Bounds(t *testing.T) {
	prices := make([]float64, 200)
	for i := range prices {
		prices[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i%7)
	}
	for i, v := range RSISeries(prices, 14) {
		if v < 0 || v > 100 {
			t.Fatalf("RSI[%d]=%f out of [0,100]", i, v)
		}
	}
}

func TestRSI_UnavailableWhenShort(t *testing.T) {
	prices := make([]float64, 14)
	if RSIValue(prices, 14).OK() {
		t.Error("expected RSI(14) over 14 values to be unavailable")
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_Availability(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)*0.5
	}

	short := MACD(prices[:25], 12, 26, 9, 10)
	if short.Line.OK() || short.Signal.OK() || short.Hist.OK() {
		t.Error("expected every MACD output unavailable below 26 values")
	}

	lineOnly := MACD(prices[:26], 12, 26, 9, 10)
	if !lineOnly.Line.OK() {
		t.Error("expected MACD line at 26 values")
	}
	if lineOnly.Signal.OK() || lineOnly.Hist.OK() {
		t.Error("expected signal and histogram unavailable at 26 values")
	}

	full := MACD(prices[:34], 12, 26, 9, 10)
	if !full.Hist.OK() {
		t.Error("expected histogram at 34 values")
	}
}

func TestMACD_ConstantSeriesIsZeroNotUnavailable(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 50
	}
	res := MACD(prices, 12, 26, 9, 10)
	assertClose(t, "line", mustValue(t, "line", res.Line), 0, 1e-12)
	assertClose(t, "hist", mustValue(t, "hist", res.Hist), 0, 1e-12)
	assertClose(t, "hist avg", mustValue(t, "hist avg", res.HistAbsAvg), 0, 1e-12)
}

func TestMACD_RisingSeriesPositiveLine(t *testing.T) {
	prices := make([]float64, 80)
	for i := range prices {
		prices[i] = 100 * math.Pow(1.01, float64(i))
	}
	res := MACD(prices, 12, 26, 9, 10)
	if mustValue(t, "line", res.Line) <= 0 {
		t.Error("expected positive MACD line for an accelerating uptrend")
	}
	if mustValue(t, "hist", res.Hist) <= 0 {
		t.Error("expected positive histogram for an accelerating uptrend")
	}
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATR_ConstantRange(t *testing.T) {
	// every bar spans 99.5..100.5 with no gaps → TR = 1
	atr := ATR(flatBars(30, 100), 14)
	assertClose(t, "ATR", mustValue(t, "ATR", atr), 1.0, 1e-12)
}

func TestATR_UsesPreviousClose(t *testing.T) {
	cs := []model.Candle{
		bar(0, 10, 10, 10, 10, 1),
		bar(1, 12, 12.5, 12, 12.5, 1), // gap up: TR = 12.5 - 10 = 2.5
		bar(2, 12, 12.5, 11.5, 12, 1), // TR = max(1, 0, 1) = 1
	}
	assertClose(t, "ATR(2)", mustValue(t, "ATR", ATR(cs, 2)), 1.75, 1e-12)
	if ATR(cs, 3).OK() {
		t.Error("expected ATR(3) unavailable with 3 candles")
	}
}

// ────────────────────────────────────────────────────────────
// Candle geometry
// ────────────────────────────────────────────────────────────

func TestBodyStrength(t *testing.T) {
	cases := []struct {
		name string
		c    model.Candle
		want float64
	}{
		{"full body", bar(0, 10, 12, 10, 12, 1), 1},
		{"half body", bar(0, 10, 14, 10, 12, 1), 0.5},
		{"doji", bar(0, 10, 12, 8, 10, 1), 0},
		{"zero range", bar(0, 10, 10, 10, 10, 1), 0},
		{"bad candle clamps", bar(0, 8, 10, 9.9, 12, 1), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := BodyStrength(tc.c)
			if got < 0 || got > 1 {
				t.Fatalf("body strength %f out of [0,1]", got)
			}
			assertClose(t, tc.name, got, tc.want, 1e-9)
		})
	}
}

func TestSwingLevels_ExcludesLastCandle(t *testing.T) {
	cs := []model.Candle{
		bar(0, 10, 11, 9, 10, 1),
		bar(1, 10, 13, 8, 10, 1),
		bar(2, 10, 12, 9.5, 10, 1),
		bar(3, 10, 20, 1, 10, 1), // outside the window
	}
	hi, lo := SwingLevels(cs, 3)
	assertClose(t, "swing high", mustValue(t, "hi", hi), 13, 1e-12)
	assertClose(t, "swing low", mustValue(t, "lo", lo), 8, 1e-12)

	if hi, _ := SwingLevels(cs, 4); hi.OK() {
		t.Error("expected unavailable swing with lookback 4 over 4 candles")
	}
}

func TestStructure(t *testing.T) {
	up := risingBars(6, 100, 1)
	if ok, err := Structure(up, 5, model.Long, 0); err != nil || !ok {
		t.Errorf("expected rising structure for LONG, got ok=%v err=%v", ok, err)
	}
	if ok, _ := Structure(up, 5, model.Short, 0); ok {
		t.Error("expected no SHORT structure on a rising series")
	}

	// a small dip inside the tolerance band still counts
	wobble := risingBars(5, 100, 1)
	wobble[3].High = wobble[2].High * 0.999
	if ok, _ := Structure(wobble, 5, model.Long, 0.002); !ok {
		t.Error("expected tolerance band to absorb a 0.1% dip")
	}
	if ok, _ := Structure(wobble, 5, model.Long, 0); ok {
		t.Error("expected zero tolerance to reject the dip")
	}

	_, err := Structure(up[:3], 5, model.Long, 0)
	if !errors.Is(err, ErrDataInsufficient) {
		t.Fatalf("expected ErrDataInsufficient, got %v", err)
	}
	var die *DataInsufficientError
	if !errors.As(err, &die) || die.Have != 3 || die.Need != 5 {
		t.Errorf("unexpected error detail: %+v", die)
	}
}

func TestVolumeSpike(t *testing.T) {
	cs := []model.Candle{
		bar(0, 1, 1, 1, 1, 100),
		bar(1, 1, 1, 1, 1, 200),
		bar(2, 1, 1, 1, 1, 450),
	}
	assertClose(t, "spike", mustValue(t, "spike", VolumeSpike(cs, 2)), 3.0, 1e-12)
	if VolumeSpike(cs, 3).OK() {
		t.Error("expected unavailable spike when window exceeds history")
	}
}

func TestSlope(t *testing.T) {
	assertClose(t, "slope", mustValue(t, "slope", Slope([]float64{100, 101, 102, 104}, 3)), 0.04, 1e-12)
	if Slope([]float64{0, 1}, 1).OK() {
		t.Error("expected unavailable slope from a zero base")
	}
}

// ────────────────────────────────────────────────────────────
// Divergence
// ────────────────────────────────────────────────────────────

func TestDivergence(t *testing.T) {
	closes := []float64{100, 101, 102, 103}
	cases := []struct {
		name string
		in   DivergenceInput
		want bool
	}{
		{"rsi falls while price rises", DivergenceInput{Closes: closes, RSI: []float64{70, 65, 60, 55}}, true},
		{"hist falls while price rises", DivergenceInput{Closes: closes, Hist: []float64{0.3, 0.2, 0.1, 0.05}}, true},
		{"both agree", DivergenceInput{Closes: closes, RSI: []float64{50, 55, 60, 65}, Hist: []float64{0.1, 0.2, 0.3, 0.4}}, false},
		{"flat price never diverges", DivergenceInput{Closes: []float64{5, 6, 4, 5}, RSI: []float64{70, 65, 60, 50}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Divergence(tc.in, 3)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := Divergence(DivergenceInput{Closes: closes}, 3); !errors.Is(err, ErrDataInsufficient) {
		t.Errorf("expected ErrDataInsufficient without oscillators, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Simplified heuristics
// ────────────────────────────────────────────────────────────

func TestADX_OneSidedTrend(t *testing.T) {
	res := ADX(risingBars(20, 100, 1), 14)
	assertClose(t, "ADX", mustValue(t, "ADX", res.ADX), 100, 1e-9)
	assertClose(t, "-DI", mustValue(t, "-DI", res.MinusDI), 0, 1e-12)
	if mustValue(t, "+DI", res.PlusDI) <= 0 {
		t.Error("expected positive +DI")
	}
}

func TestADX_FlatMarket(t *testing.T) {
	res := ADX(flatBars(20, 100), 14)
	assertClose(t, "ADX flat", mustValue(t, "ADX", res.ADX), 0, 1e-12)
}

func TestCCI(t *testing.T) {
	assertClose(t, "CCI flat", mustValue(t, "CCI", CCI(flatBars(20, 10), 20)), 0, 1e-12)

	// typical prices 1, 2, 3 → sma 2, md 2/3, cci = (3-2)/(0.015*2/3) = 100
	cs := []model.Candle{bar(0, 1, 1, 1, 1, 1), bar(1, 2, 2, 2, 2, 1), bar(2, 3, 3, 3, 3, 1)}
	assertClose(t, "CCI", mustValue(t, "CCI", CCI(cs, 3)), 100, 1e-9)
}

func TestStochastic(t *testing.T) {
	flat := Stochastic([]model.Candle{bar(0, 5, 5, 5, 5, 1), bar(1, 5, 5, 5, 5, 1), bar(2, 5, 5, 5, 5, 1)}, 2, 2)
	assertClose(t, "%K flat", mustValue(t, "K", flat.K), 50, 1e-12)

	cs := []model.Candle{
		bar(0, 1, 2, 0, 1, 1),
		bar(1, 1, 4, 1, 4, 1), // window [0,1]: hh 4, ll 0 → K = 100
		bar(2, 4, 4, 2, 3, 1), // window [1,2]: hh 4, ll 1 → K = 66.667
	}
	res := Stochastic(cs, 2, 2)
	assertClose(t, "%K", mustValue(t, "K", res.K), 200.0/3, 1e-9)
	assertClose(t, "%D", mustValue(t, "D", res.D), (100+200.0/3)/2, 1e-9)
}

func TestSAR(t *testing.T) {
	rising := SAR(risingBars(12, 100, 1), 10)
	if !rising.Rising {
		t.Fatal("expected rising SAR")
	}
	// window starts at bar 2: low = 102 - 1
	assertClose(t, "SAR rising", mustValue(t, "SAR", rising.Level), 101, 1e-12)

	cs := risingBars(12, 100, 1)
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
	falling := SAR(cs, 10)
	if falling.Rising {
		t.Fatal("expected falling SAR")
	}
}

func TestPatterns(t *testing.T) {
	if !Pullback([]float64{1, 3, 2}, model.Long, 3) {
		t.Error("expected LONG pullback below prior max")
	}
	if Pullback([]float64{1, 2, 3}, model.Long, 3) {
		t.Error("expected no pullback at a new high")
	}
	if got := DoubleTopBottom([]float64{100, 105, 101, 105.1, 102}, 5, 0.003); got != PatternDoubleTop {
		t.Errorf("expected double top, got %q", got)
	}
	if got := DoubleTopBottom([]float64{100, 110, 120, 130, 140}, 5, 0.003); got != PatternNone {
		t.Errorf("expected no pattern, got %q", got)
	}
}

func TestValue_String(t *testing.T) {
	if Unavailable.String() != "NA" {
		t.Errorf("expected NA, got %s", Unavailable.String())
	}
	if Of(math.NaN()).OK() {
		t.Error("expected NaN to be unavailable")
	}
	if Of(0).String() != "0.000000" {
		t.Errorf("expected 0.000000, got %s", Of(0).String())
	}
}
