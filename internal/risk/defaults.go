package risk

import "github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"

// DefaultTiers returns the built-in LOW, MEDIUM, HIGH profiles.
func DefaultTiers() []Tier {
	return []Tier{
		{
			Key: model.TierLow, Name: "Low risk", Emoji: "🟢",
			EMAGapMin:        GapMin{H4: 0.003, H1: 0.005},
			Require200On4h:   true,
			EMASlopeMin:      0.001,
			RequireFastCross: true,

			CandleStrengthMin:   0.60,
			EntryBreakTolerance: 0,
			VolumeSpikeMin:      1.3,

			RSILong: 55, RSIShort: 45, RSIStrongLong: 70, RSIStrongShort: 30,
			RSICountMin:    4,
			MACDHistMin:    0.00005,
			MACDCountMin:   4,
			MACDStrongMult: 1.5,
			StrengthBonus:  1,

			RSIExtremeHigh: 75, RSIExtremeLow: 25,
			ExtremeOverrideCount: 3,

			ADXMin:        25,
			ConfluenceMin: 3,

			ATRStopMultiplier: 1.2,
			RewardRiskRatio:   2.0,

			Weights:             Weights{Trend: 4, Alignment: 3, Candle: 2, Entry: 2, Momentum: 3, Guard: 2, Confluence: 2},
			MinWeightedFraction: 0.85,
		},
		{
			Key: model.TierMedium, Name: "Medium risk", Emoji: "🟡",
			EMAGapMin:        GapMin{H4: 0.002, H1: 0.003},
			EMASlopeMin:      0.0005,
			RequireFastCross: true,

			CandleStrengthMin:   0.48,
			EntryBreakTolerance: 0.003,
			VolumeSpikeMin:      1.2,

			RSILong: 53, RSIShort: 47, RSIStrongLong: 70, RSIStrongShort: 30,
			RSICountMin:    4,
			MACDHistMin:    0.00003,
			MACDCountMin:   4,
			MACDStrongMult: 1.3,
			StrengthBonus:  1,

			RSIExtremeHigh: 80, RSIExtremeLow: 20,
			ExtremeOverrideCount: 2,

			ADXMin:        20,
			ConfluenceMin: 2,

			ATRStopMultiplier: 1.1,
			RewardRiskRatio:   1.8,

			Weights:             Weights{Trend: 3, Alignment: 3, Candle: 3, Entry: 2, Momentum: 3, Guard: 2, Confluence: 3},
			MinWeightedFraction: 0.75,
		},
		{
			Key: model.TierHigh, Name: "High risk", Emoji: "🔴",
			EMAGapMin:   GapMin{H4: 0.001, H1: 0.001},
			EMASlopeMin: 0.0002,

			CandleStrengthMin:   0.35,
			EntryBreakTolerance: 0.003,
			VolumeSpikeMin:      1.1,

			RSILong: 51, RSIShort: 49, RSIStrongLong: 70, RSIStrongShort: 30,
			RSICountMin:    3,
			MACDHistMin:    0.00001,
			MACDCountMin:   3,
			MACDStrongMult: 1.2,
			StrengthBonus:  1,

			RSIExtremeHigh: 85, RSIExtremeLow: 15,
			ExtremeOverrideCount: 2,

			ADXMin:        20,
			ConfluenceMin: 2,

			ATRStopMultiplier: 1.2,
			RewardRiskRatio:   1.5,

			Weights:             Weights{Trend: 1, Alignment: 2, Candle: 4, Entry: 3, Momentum: 3, Guard: 2, Confluence: 4},
			MinWeightedFraction: 0.60,
		},
	}
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultTiers())
	if err != nil {
		panic(err)
	}
	return t
}
