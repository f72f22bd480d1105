// Package risk holds the immutable risk-tier parameter table consumed by the
// rule engine and the synthesizer. Tiers are ordered by strictness, LOW first.
package risk

import (
	"errors"
	"fmt"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// Category groups rules that share a weight.
type Category string

const (
	CatTrend      Category = "trend"
	CatAlignment  Category = "alignment"
	CatCandle     Category = "candle"
	CatEntry      Category = "entry"
	CatMomentum   Category = "momentum"
	CatGuard      Category = "guard"
	CatConfluence Category = "confluence"
)

// Weights are the per-category rule weights of a tier.
type Weights struct {
	Trend      float64 `yaml:"trend" validate:"gte=0"`
	Alignment  float64 `yaml:"alignment" validate:"gte=0"`
	Candle     float64 `yaml:"candle" validate:"gte=0"`
	Entry      float64 `yaml:"entry" validate:"gte=0"`
	Momentum   float64 `yaml:"momentum" validate:"gte=0"`
	Guard      float64 `yaml:"guard" validate:"gte=0"`
	Confluence float64 `yaml:"confluence" validate:"gte=0"`
}

// Of returns the weight of a category. Unknown categories weigh 0.
func (w Weights) Of(c Category) float64 {
	switch c {
	case CatTrend:
		return w.Trend
	case CatAlignment:
		return w.Alignment
	case CatCandle:
		return w.Candle
	case CatEntry:
		return w.Entry
	case CatMomentum:
		return w.Momentum
	case CatGuard:
		return w.Guard
	case CatConfluence:
		return w.Confluence
	}
	return 0
}

// GapMin is a minimum relative EMA21/EMA55 gap per trend timeframe.
type GapMin struct {
	H4 float64 `yaml:"h4" validate:"gte=0"`
	H1 float64 `yaml:"h1" validate:"gte=0"`
}

// For returns the floor for tf; timeframes without a floor return 0.
func (g GapMin) For(tf model.Timeframe) float64 {
	switch tf {
	case model.TF4h:
		return g.H4
	case model.TF1h:
		return g.H1
	}
	return 0
}

// Tier is one strictness profile. Values are copied into the table on
// construction and never mutated afterwards.
type Tier struct {
	Key   model.TierKey `yaml:"key" validate:"oneof=LOW MEDIUM HIGH"`
	Name  string        `yaml:"name"`
	Emoji string        `yaml:"emoji"`

	// trend and alignment
	EMAGapMin        GapMin  `yaml:"ema_gap_min"`
	Require200On4h   bool    `yaml:"require_ema200_4h"`
	EMASlopeMin      float64 `yaml:"ema_slope_min" validate:"gte=0"`
	RequireFastCross bool    `yaml:"require_fast_cross"`

	// decision candle and entry
	CandleStrengthMin   float64 `yaml:"candle_strength_min" validate:"gte=0,lte=1"`
	EntryBreakTolerance float64 `yaml:"entry_break_tolerance" validate:"gte=0"`
	VolumeSpikeMin      float64 `yaml:"volume_spike_min" validate:"gte=0"`

	// momentum
	RSILong        float64 `yaml:"rsi_long" validate:"gte=50,lte=100"`
	RSIShort       float64 `yaml:"rsi_short" validate:"gte=0,lte=50"`
	RSIStrongLong  float64 `yaml:"rsi_strong_long" validate:"gtefield=RSILong"`
	RSIStrongShort float64 `yaml:"rsi_strong_short" validate:"ltefield=RSIShort"`
	RSICountMin    int     `yaml:"rsi_count_min" validate:"gte=1"`
	MACDHistMin    float64 `yaml:"macd_hist_min" validate:"gte=0"` // |hist| / close
	MACDCountMin   int     `yaml:"macd_count_min" validate:"gte=1"`
	MACDStrongMult float64 `yaml:"macd_strong_mult" validate:"gte=1"`
	StrengthBonus  int     `yaml:"strength_bonus" validate:"gte=0"`

	// guards
	RSIExtremeHigh       float64 `yaml:"rsi_extreme_high" validate:"gte=50,lte=100"`
	RSIExtremeLow        float64 `yaml:"rsi_extreme_low" validate:"gte=0,lte=50"`
	ExtremeOverrideCount int     `yaml:"extreme_override_count" validate:"gte=1"`

	// confluence
	ADXMin        float64 `yaml:"adx_min" validate:"gte=0"`
	ConfluenceMin int     `yaml:"confluence_min" validate:"gte=0,lte=4"`

	// stop/target
	ATRStopMultiplier float64 `yaml:"atr_stop_multiplier" validate:"gt=0"`
	RewardRiskRatio   float64 `yaml:"reward_risk_ratio" validate:"gt=0"`

	Weights             Weights `yaml:"weights"`
	MinWeightedFraction float64 `yaml:"min_weighted_fraction" validate:"gt=0,lte=1"`
}

// Label returns "emoji name" for messages, falling back to the key.
func (t Tier) Label() string {
	name := t.Name
	if name == "" {
		name = string(t.Key)
	}
	if t.Emoji == "" {
		return name
	}
	return t.Emoji + " " + name
}

var (
	// ErrEmptyTable is returned for a table without tiers.
	ErrEmptyTable = errors.New("risk: empty tier table")
	// ErrDuplicateTier is returned when a key appears twice.
	ErrDuplicateTier = errors.New("risk: duplicate tier key")
)

// Table is the ordered, read-only tier table.
type Table struct {
	tiers []Tier
	index map[model.TierKey]int
}

// NewTable builds a table from tiers ordered strictest first.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyTable
	}
	t := &Table{
		tiers: make([]Tier, len(tiers)),
		index: make(map[model.TierKey]int, len(tiers)),
	}
	copy(t.tiers, tiers)
	for i, tier := range t.tiers {
		if _, dup := t.index[tier.Key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTier, tier.Key)
		}
		if tier.Weights == (Weights{}) {
			return nil, fmt.Errorf("risk: tier %s has no rule weights", tier.Key)
		}
		t.index[tier.Key] = i
	}
	return t, nil
}

// Len returns the number of tiers.
func (t *Table) Len() int { return len(t.tiers) }

// At returns the tier at strictness index i.
func (t *Table) At(i int) Tier { return t.tiers[i] }

// Tiers returns a copy of the ordered tiers.
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Get looks a tier up by key.
func (t *Table) Get(key model.TierKey) (Tier, bool) {
	i, ok := t.index[key]
	if !ok {
		return Tier{}, false
	}
	return t.tiers[i], true
}

// Index returns the strictness index of key, or -1.
func (t *Table) Index(key model.TierKey) int {
	if i, ok := t.index[key]; ok {
		return i
	}
	return -1
}
