package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// Trade is a single resolved signal as it appears in a report.
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Direction model.Direction `json:"direction"`
	Tier      model.TierKey   `json:"tier"`
	PnL       float64         `json:"pnl"`
	ReturnPct float64         `json:"return_pct"`
}

// Report summarizes a settled day. Only TP_HIT and STOP_HIT rows count
// towards the performance figures; everything else is tallied separately.
type Report struct {
	Day      string  `json:"day"`
	Total    int     `json:"total"`
	Resolved int     `json:"resolved"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
	AvgPnL   float64 `json:"avg_pnl"`
	Best     *Trade  `json:"best,omitempty"`
	Worst    *Trade  `json:"worst,omitempty"`

	Open     int `json:"open"`
	Manual   int `json:"closed_manual"`
	Degraded int `json:"data_gap"`

	ByTier map[model.TierKey]TierStats `json:"by_tier,omitempty"`
}

// TierStats is the per-tier breakdown of resolved signals.
type TierStats struct {
	Resolved int     `json:"resolved"`
	Wins     int     `json:"wins"`
	TotalPnL float64 `json:"total_pnl"`
}

// Empty reports whether no signal was resolved by target or stop.
func (r Report) Empty() bool { return r.Resolved == 0 }

// BuildReport aggregates the day's signals.
func BuildReport(day string, sigs []model.Signal) Report {
	rep := Report{Day: day, Total: len(sigs)}
	total := decimal.Zero
	tierPnL := map[model.TierKey]decimal.Decimal{}
	stats := map[model.TierKey]TierStats{}

	for _, s := range sigs {
		switch s.Status {
		case model.StatusTPHit, model.StatusStopHit:
		case model.StatusClosedManual:
			rep.Manual++
			if isDataGap(s) {
				rep.Degraded++
			}
			continue
		default:
			rep.Open++
			continue
		}

		pnl := decimal.NewFromFloat(s.FinalPnL)
		total = total.Add(pnl)
		rep.Resolved++
		ts := stats[s.Tier]
		ts.Resolved++
		if s.Status == model.StatusTPHit {
			rep.Wins++
			ts.Wins++
		} else {
			rep.Losses++
		}
		tierPnL[s.Tier] = tierPnL[s.Tier].Add(pnl)
		stats[s.Tier] = ts

		t := Trade{ID: s.ID, Symbol: s.Symbol, Direction: s.Direction, Tier: s.Tier, PnL: s.FinalPnL, ReturnPct: s.ReturnPct}
		if rep.Best == nil || t.PnL > rep.Best.PnL {
			b := t
			rep.Best = &b
		}
		if rep.Worst == nil || t.PnL < rep.Worst.PnL {
			w := t
			rep.Worst = &w
		}
	}

	if rep.Resolved == 0 {
		return rep
	}
	n := decimal.NewFromInt(int64(rep.Resolved))
	rep.TotalPnL = total.Round(6).InexactFloat64()
	rep.AvgPnL = total.Div(n).Round(6).InexactFloat64()
	rep.WinRate = decimal.NewFromInt(int64(rep.Wins)).Mul(decimal.NewFromInt(100)).Div(n).Round(2).InexactFloat64()
	rep.ByTier = make(map[model.TierKey]TierStats, len(stats))
	for k, ts := range stats {
		ts.TotalPnL = tierPnL[k].Round(6).InexactFloat64()
		rep.ByTier[k] = ts
	}
	return rep
}

func isDataGap(s model.Signal) bool {
	n := len(DataGapTag)
	return len(s.Provenance) >= n && s.Provenance[len(s.Provenance)-n:] == DataGapTag
}
