// Package strategy is the rule evaluation engine.
//
// For one symbol snapshot, direction and risk tier the Engine runs the full
// rule battery, without short-circuiting, and aggregates the verdicts into a
// weighted pass fraction. SelectTier resolves competing qualifying tiers.
package strategy

import (
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/risk"
)

// Params are engine-wide evaluation settings, shared by every tier.
type Params struct {
	TrendTFs        []model.Timeframe `yaml:"trend_tfs" validate:"min=1"`
	AlignmentTF     model.Timeframe   `yaml:"alignment_tf"`
	CandleTF        model.Timeframe   `yaml:"candle_tf"`
	EntryTF         model.Timeframe   `yaml:"entry_tf"`
	MomentumTFs     []model.Timeframe `yaml:"momentum_tfs" validate:"min=1"`
	DecisionTFs     []model.Timeframe `yaml:"decision_tfs" validate:"min=1"`
	ConfluenceTF    model.Timeframe   `yaml:"confluence_tf"`
	StochOverbought float64           `yaml:"stoch_overbought" validate:"gt=0,lte=100"`
	StochOversold   float64           `yaml:"stoch_oversold" validate:"gte=0,ltfield=StochOverbought"`
	AmbiguityMargin float64           `yaml:"ambiguity_margin" validate:"gte=0"`
}

// DefaultParams returns the standard timeframe layout.
func DefaultParams() Params {
	return Params{
		TrendTFs:        []model.Timeframe{model.TF4h, model.TF1h},
		AlignmentTF:     model.TF30m,
		CandleTF:        model.TF15m,
		EntryTF:         model.TF5m,
		MomentumTFs:     []model.Timeframe{model.TF5m, model.TF15m, model.TF30m, model.TF1h, model.TF4h},
		DecisionTFs:     []model.Timeframe{model.TF15m, model.TF30m},
		ConfluenceTF:    model.TF30m,
		StochOverbought: 80,
		StochOversold:   20,
		AmbiguityMargin: 0.02,
	}
}

// RuleResult is one rule verdict with its numeric evidence.
type RuleResult struct {
	Name     string        `json:"name"`
	Category risk.Category `json:"category"`
	Weight   float64       `json:"weight"`
	Passed   bool          `json:"passed"`
	Detail   string        `json:"detail"`
}

// Outcome is the aggregate of one (symbol, direction, tier) evaluation.
type Outcome struct {
	Symbol       string          `json:"symbol"`
	Direction    model.Direction `json:"direction"`
	Tier         risk.Tier       `json:"-"`
	TierIndex    int             `json:"tier_index"`
	Results      []RuleResult    `json:"results"`
	PassedWeight float64         `json:"passed_weight"`
	TotalWeight  float64         `json:"total_weight"`
	Passed       bool            `json:"passed"`
}

// Fraction returns PassedWeight/TotalWeight, 0 when nothing carries weight.
func (o *Outcome) Fraction() float64 {
	if o.TotalWeight <= 0 {
		return 0
	}
	return o.PassedWeight / o.TotalWeight
}

// PassedCount returns how many rules passed.
func (o *Outcome) PassedCount() int {
	n := 0
	for _, r := range o.Results {
		if r.Passed {
			n++
		}
	}
	return n
}

// Input is what every rule sees.
type Input struct {
	Snap   *indicator.Snapshot
	Dir    model.Direction
	Tier   risk.Tier
	Params Params
}

// Verdict is a rule's raw answer before weighting.
type Verdict struct {
	Passed bool
	Detail string
}

// Rule is one independent check of the battery.
type Rule interface {
	Name() string
	Category() risk.Category
	Evaluate(in Input) Verdict
}

// Engine evaluates the rule battery over a tier table.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	rules  []Rule
	params Params
	table  *risk.Table
}

// NewEngine creates an engine with the standard rule battery.
func NewEngine(table *risk.Table, params Params) *Engine {
	return NewEngineWithRules(table, params, DefaultRules())
}

// NewEngineWithRules creates an engine with a custom battery.
func NewEngineWithRules(table *risk.Table, params Params, rules []Rule) *Engine {
	return &Engine{rules: rules, params: params, table: table}
}

// Table returns the tier table the engine evaluates against.
func (e *Engine) Table() *risk.Table { return e.table }

// Params returns the engine settings.
func (e *Engine) Params() Params { return e.params }

// Evaluate runs every rule for one direction and tier. Every rule counts
// towards TotalWeight; rules that cannot be decided fail.
func (e *Engine) Evaluate(snap *indicator.Snapshot, dir model.Direction, tier risk.Tier) Outcome {
	in := Input{Snap: snap, Dir: dir, Tier: tier, Params: e.params}
	out := Outcome{
		Direction: dir,
		Tier:      tier,
		TierIndex: e.table.Index(tier.Key),
		Results:   make([]RuleResult, 0, len(e.rules)),
	}
	if snap != nil {
		out.Symbol = snap.Symbol
	}
	for _, r := range e.rules {
		v := r.Evaluate(in)
		w := tier.Weights.Of(r.Category())
		out.TotalWeight += w
		if v.Passed {
			out.PassedWeight += w
		}
		out.Results = append(out.Results, RuleResult{
			Name:     r.Name(),
			Category: r.Category(),
			Weight:   w,
			Passed:   v.Passed,
			Detail:   v.Detail,
		})
	}
	out.Passed = out.TotalWeight > 0 && out.Fraction() >= tier.MinWeightedFraction
	return out
}

// Decision collects every tier outcome of one direction and the selection.
type Decision struct {
	Direction model.Direction
	Outcomes  []Outcome
	Selected  *Outcome
}

// Decide evaluates dir against every tier and selects the winner, if any.
func (e *Engine) Decide(snap *indicator.Snapshot, dir model.Direction) Decision {
	d := Decision{Direction: dir, Outcomes: make([]Outcome, 0, e.table.Len())}
	for i := 0; i < e.table.Len(); i++ {
		d.Outcomes = append(d.Outcomes, e.Evaluate(snap, dir, e.table.At(i)))
	}
	if sel, ok := SelectTier(d.Outcomes, e.params.AmbiguityMargin); ok {
		d.Selected = &sel
	}
	return d
}

// DecideBoth evaluates LONG and SHORT independently.
func (e *Engine) DecideBoth(snap *indicator.Snapshot) []Decision {
	out := make([]Decision, 0, len(model.Directions))
	for _, dir := range model.Directions {
		out = append(out, e.Decide(snap, dir))
	}
	return out
}

// SelectTier picks among qualifying outcomes of one direction. The highest
// fraction wins; when several qualifying tiers lie within margin of the best,
// MEDIUM is preferred if among them, else the strictest.
func SelectTier(outcomes []Outcome, margin float64) (Outcome, bool) {
	best := -1.0
	for i := range outcomes {
		if outcomes[i].Passed && outcomes[i].Fraction() > best {
			best = outcomes[i].Fraction()
		}
	}
	if best < 0 {
		return Outcome{}, false
	}

	var winner *Outcome
	for i := range outcomes {
		o := &outcomes[i]
		if !o.Passed || (o.Fraction() < best && best-o.Fraction() >= margin) {
			continue
		}
		if o.Tier.Key == model.TierMedium {
			return *o, true
		}
		if winner == nil || o.TierIndex < winner.TierIndex {
			winner = o
		}
	}
	return *winner, true
}
