package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/settlement"
)

func message() SignalMessage {
	return SignalMessage{
		Signal: model.Signal{
			ID: "x", Symbol: "SOL-USDT", Direction: model.Short, Tier: model.TierHigh,
			Entry: 142.5, Stop: 145.25, Target: 138.375,
			IssuedAt: time.Date(2025, 3, 10, 18, 15, 0, 0, calendar.Tehran),
		},
		TierLabel: "High risk",
		TierEmoji: "🔴",
		Passed:    7,
		Total:     9,
		Rules: []RuleLine{
			{Name: "htf_trend", Passed: true, Detail: "gap=5.00%"},
			{Name: "rsi<momentum>", Passed: true},
			{Name: "candle_strength", Passed: false, Detail: "BS15m=0.310 [min 0.48]"},
		},
	}
}

func TestSignalAlert(t *testing.T) {
	a := SignalAlert(message())
	if !a.HTML || a.Title != "SOL-USDT SHORT HIGH" {
		t.Errorf("alert = %+v", a)
	}
	for _, want := range []string{
		"🔴 🔴 <b>High risk</b> | SHORT",
		"<code>SOL</code>",
		"<b>7/9</b>",
		"✅ rsi&lt;momentum&gt;\n",
		"✅ htf_trend: <i>gap=5.00%</i>",
		"❌ candle_strength: <i>BS15m=0.310 [min 0.48]</i>",
		"Entry: <code>142.5000</code>",
		"Target: <code>138.3750</code>",
		"2025-03-10 18:15:00",
	} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("message missing %q:\n%s", want, a.Message)
		}
	}
}

func TestSignalAlert_SmallPrices(t *testing.T) {
	m := message()
	m.Signal.Entry = 0.12345678
	if a := SignalAlert(m); !strings.Contains(a.Message, "0.12345678") {
		t.Errorf("sub-unit price should carry 8 decimals:\n%s", a.Message)
	}
}

func TestReportAlert(t *testing.T) {
	rep := settlement.BuildReport("2025-03-10", []model.Signal{
		{Symbol: "BTC-USDT", Direction: model.Long, Status: model.StatusTPHit, FinalPnL: 0.3748},
		{Symbol: "ETH-USDT", Direction: model.Short, Status: model.StatusStopHit, FinalPnL: -0.2251},
		{Symbol: "DOT-USDT", Status: model.StatusClosedManual, Provenance: settlement.DataGapTag},
	})
	a := ReportAlert(rep)
	if a.Level != AlertWarning {
		t.Errorf("data gap should raise the level, got %s", a.Level)
	}
	for _, want := range []string{"TP 1 / SL 1", "50.00%", "+0.1497", "Best: BTC-USDT LONG <code>+0.3748</code>", "Worst: ETH-USDT SHORT <code>-0.2251</code>", "data gaps 1"} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("report missing %q:\n%s", want, a.Message)
		}
	}

	empty := ReportAlert(settlement.BuildReport("2025-03-11", nil))
	if !strings.Contains(empty.Message, "No signal") || empty.Level != AlertInfo {
		t.Errorf("empty report = %+v", empty)
	}
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("123:abc", "-100", zerolog.Nop())
	n.baseURL = srv.URL

	if err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "a<b", Message: "x & y"}); err != nil {
		t.Fatal(err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if got["parse_mode"] != "HTML" || got["chat_id"] != "-100" {
		t.Errorf("payload = %v", got)
	}
	if text, _ := got["text"].(string); text != "⚠️ <b>a&lt;b</b>\n\nx &amp; y" {
		t.Errorf("text = %q", text)
	}

	// pre-rendered HTML goes through untouched
	n.Send(context.Background(), SignalAlert(message()))
	if text, _ := got["text"].(string); !strings.Contains(text, "<b>7/9</b>") {
		t.Errorf("html text = %q", text)
	}
}

func TestTelegramNotifier_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("t", "c", zerolog.Nop())
	n.baseURL = srv.URL
	err := n.Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zerolog.Nop())
	n.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	if err := n.Send(context.Background(), SignalAlert(message())); err != nil {
		t.Fatal(err)
	}
	if got["title"] != "SOL-USDT SHORT HIGH" || got["ts"] != "2025-03-10T12:00:00Z" {
		t.Errorf("payload = %v", got)
	}
	data, _ := got["data"].(map[string]any)
	if data["symbol"] != "SOL-USDT" {
		t.Errorf("structured data = %v", data)
	}
}

type failing struct{ err error }

func (f failing) Send(context.Context, Alert) error { return f.err }

func TestMultiAndLog(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	m := Multi{NewLogNotifier(zerolog.New(&buf)), failing{boom}}

	err := m.Send(context.Background(), Alert{Level: AlertInfo, Title: "hello"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(buf.String(), `"title":"hello"`) {
		t.Errorf("log output = %s", buf.String())
	}
}
