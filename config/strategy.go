package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/indicator"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/risk"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/settlement"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/strategy"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/synthesizer"
)

// StrategyFile is the YAML document tuning the decision engine.
// Sections left out of the file keep their built-in defaults.
type StrategyFile struct {
	Tiers       []risk.Tier        `yaml:"tiers" validate:"omitempty,len=3,dive"`
	Indicators  indicator.Params   `yaml:"indicators"`
	Engine      strategy.Params    `yaml:"engine"`
	Synthesizer synthesizer.Params `yaml:"synthesizer"`
	Settlement  settlement.Params  `yaml:"settlement"`
}

// Strategy is the validated, immutable form handed to the components.
type Strategy struct {
	Table       *risk.Table
	Indicators  indicator.Params
	Engine      strategy.Params
	Synthesizer synthesizer.Params
	Settlement  settlement.Params
}

// DefaultStrategyFile returns the built-in tuning.
func DefaultStrategyFile() StrategyFile {
	return StrategyFile{
		Tiers:       risk.DefaultTiers(),
		Indicators:  indicator.DefaultParams(),
		Engine:      strategy.DefaultParams(),
		Synthesizer: synthesizer.DefaultParams(),
		Settlement:  settlement.DefaultParams(),
	}
}

// LoadStrategy reads path over the defaults. A missing file is not an error.
func LoadStrategy(path string) (*Strategy, error) {
	f := DefaultStrategyFile()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read strategy: %w", err)
		default:
			if err := yaml.Unmarshal(b, &f); err != nil {
				return nil, fmt.Errorf("config: parse strategy %s: %w", path, err)
			}
		}
	}
	return f.Build()
}

// Build validates the file and converts it.
func (f StrategyFile) Build() (*Strategy, error) {
	if len(f.Tiers) == 0 {
		f.Tiers = risk.DefaultTiers()
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("config: strategy: %w", err)
	}
	if err := checkTimeframes(f); err != nil {
		return nil, err
	}
	table, err := risk.NewTable(f.Tiers)
	if err != nil {
		return nil, fmt.Errorf("config: strategy: %w", err)
	}
	return &Strategy{
		Table:       table,
		Indicators:  f.Indicators,
		Engine:      f.Engine,
		Synthesizer: f.Synthesizer,
		Settlement:  f.Settlement,
	}, nil
}

func checkTimeframes(f StrategyFile) error {
	tfs := []model.Timeframe{
		f.Engine.AlignmentTF, f.Engine.CandleTF, f.Engine.EntryTF, f.Engine.ConfluenceTF,
		f.Synthesizer.EntryTF, f.Synthesizer.ATRTF, f.Synthesizer.SwingTF, f.Settlement.ReplayTF,
	}
	tfs = append(tfs, f.Engine.TrendTFs...)
	tfs = append(tfs, f.Engine.MomentumTFs...)
	tfs = append(tfs, f.Engine.DecisionTFs...)
	for _, tf := range tfs {
		if !tf.Valid() {
			return fmt.Errorf("config: strategy: unknown timeframe %q", tf)
		}
	}
	return nil
}
