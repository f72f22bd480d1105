package notification

import (
	"fmt"
	"html"
	"strings"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/settlement"
)

// SignalMessage is what a signal alert shows besides the signal itself.
type SignalMessage struct {
	Signal    model.Signal
	TierLabel string
	TierEmoji string
	Passed    int
	Total     int
	Rules     []RuleLine
}

// RuleLine is one rule verdict as shown in an alert.
type RuleLine struct {
	Name   string
	Passed bool
	Detail string
}

// SignalAlert renders an issued signal as a Telegram HTML alert.
func SignalAlert(m SignalMessage) Alert {
	s := m.Signal
	dirEmoji := "🟢"
	if s.Direction == model.Short {
		dirEmoji = "🔴"
	}
	digits := priceDigits(s.Entry)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s <b>%s</b> | %s\n\n", dirEmoji, m.TierEmoji, html.EscapeString(m.TierLabel), s.Direction)
	fmt.Fprintf(&b, "Symbol: <code>%s</code>\n", html.EscapeString(strings.TrimSuffix(s.Symbol, "-USDT")))
	fmt.Fprintf(&b, "Rules passed: <b>%d/%d</b>\n", m.Passed, m.Total)
	for _, r := range m.Rules {
		mark := "❌"
		if r.Passed {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s", mark, html.EscapeString(r.Name))
		if r.Detail != "" {
			fmt.Fprintf(&b, ": <i>%s</i>", html.EscapeString(r.Detail))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Entry: <code>%s</code>\n", model.FormatFixed(s.Entry, digits))
	fmt.Fprintf(&b, "Stop: <code>%s</code>\n", model.FormatFixed(s.Stop, digits))
	fmt.Fprintf(&b, "Target: <code>%s</code>\n\n", model.FormatFixed(s.Target, digits))
	fmt.Fprintf(&b, "⏰ %s", calendar.FormatTehran(s.IssuedAt))

	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s %s", s.Symbol, s.Direction, s.Tier),
		Message: b.String(),
		HTML:    true,
		Data:    s,
	}
}

// ReportAlert renders a settled day.
func ReportAlert(r settlement.Report) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Daily report %s</b>\n\n", r.Day)
	if r.Empty() {
		b.WriteString("No signal reached its stop or target.\n")
	} else {
		fmt.Fprintf(&b, "Resolved: <b>%d</b> (TP %d / SL %d)\n", r.Resolved, r.Wins, r.Losses)
		fmt.Fprintf(&b, "Win rate: <b>%s%%</b>\n", model.FormatFixed(r.WinRate, 2))
		fmt.Fprintf(&b, "Total PnL: <code>%s</code> USD\n", signed(r.TotalPnL))
		fmt.Fprintf(&b, "Average PnL: <code>%s</code> USD\n", signed(r.AvgPnL))
		if r.Best != nil {
			fmt.Fprintf(&b, "Best: %s %s <code>%s</code>\n", r.Best.Symbol, r.Best.Direction, signed(r.Best.PnL))
		}
		if r.Worst != nil {
			fmt.Fprintf(&b, "Worst: %s %s <code>%s</code>\n", r.Worst.Symbol, r.Worst.Direction, signed(r.Worst.PnL))
		}
	}
	fmt.Fprintf(&b, "\nClosed manually: %d (data gaps %d) | Open: %d", r.Manual, r.Degraded, r.Open)

	level := AlertInfo
	if r.Degraded > 0 {
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Title:   "Daily report " + r.Day,
		Message: b.String(),
		HTML:    true,
		Data:    r,
	}
}

func priceDigits(p float64) int {
	if p > 0 && p < 1 {
		return 8
	}
	return 4
}

func signed(v float64) string {
	s := model.FormatFixed(v, 4)
	if v > 0 {
		return "+" + s
	}
	return s
}
