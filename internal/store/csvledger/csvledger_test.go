package csvledger

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

const day = "2025-03-10"

func open(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func sig(id string) model.Signal {
	return model.Signal{
		ID: id, Symbol: "ETH-USDT", Direction: model.Short, Tier: model.TierHigh,
		Entry: 3100.5, Stop: 3150.123456789, Target: 3000,
		IssuedAt:     time.Date(2025, 3, 10, 14, 5, 9, 0, calendar.Tehran),
		Status:       model.StatusOpen,
		PositionSize: 10,
		Provenance:   "Dir=SHORT | Reasons=a:b, c",
	}
}

func TestLedger_AppendWritesHeaderOnce(t *testing.T) {
	l := open(t)
	ctx := context.Background()
	l.Append(ctx, day, sig("1"))
	l.Append(ctx, day, sig("2"))

	b, err := os.ReadFile(l.Path(day))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2", len(lines))
	}
	if lines[0] != strings.Join(Header, ",") {
		t.Errorf("header = %q", lines[0])
	}
	// prices carry 8 decimals, size 2
	if !strings.Contains(lines[1], "3150.12345679") || !strings.Contains(lines[1], ",10.00,") {
		t.Errorf("row = %q", lines[1])
	}
	if !strings.Contains(lines[1], "2025-03-10 14:05:09") {
		t.Errorf("issued_at not in Tehran time: %q", lines[1])
	}
}

func TestLedger_RoundTrip(t *testing.T) {
	l := open(t)
	ctx := context.Background()
	l.Append(ctx, day, sig("1"))
	l.Append(ctx, day, sig("2"))

	rows, err := l.ListDay(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].ID != "1" || rows[1].ID != "2" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Provenance != "Dir=SHORT | Reasons=a:b, c" {
		t.Errorf("provenance = %q", rows[0].Provenance)
	}
	if !rows[0].IssuedAt.Equal(sig("1").IssuedAt) || !rows[0].HitTime.IsZero() {
		t.Errorf("times = %v / %v", rows[0].IssuedAt, rows[0].HitTime)
	}

	mc, _ := calendar.ManualCloseTime(day)
	rows[1].Status = model.StatusClosedManual
	rows[1].HitTime = mc
	rows[1].HitPrice = 3090
	rows[1].FinalPnL = 0.012
	if err := l.ReplaceDay(ctx, day, rows); err != nil {
		t.Fatal(err)
	}

	again, _ := l.ListDay(ctx, day)
	if again[1].Status != model.StatusClosedManual || !again[1].HitTime.Equal(mc) || again[1].HitPrice != 3090 {
		t.Errorf("settled row = %+v", again[1])
	}
	if again[0].Status != model.StatusOpen {
		t.Errorf("open row = %+v", again[0])
	}
}

func TestLedger_MissingDay(t *testing.T) {
	rows, err := open(t).ListDay(context.Background(), "2020-01-01")
	if err != nil || rows != nil {
		t.Errorf("got %v, %v", rows, err)
	}
}

func TestLedger_ReadsFilesWithoutID(t *testing.T) {
	l := open(t)
	doc := "symbol,direction,risk_level,entry_price,stop_loss,take_profit,issued_at_tehran,status,hit_time_tehran,hit_price,broker_fee,final_pnl_usd,position_size_usd,return_pct,signal_source\n" +
		"BTC-USDT,LONG,LOW,100,98,104,2025-03-10 09:00:00,OPEN,,,0,0,10,0,x\n"
	if err := os.WriteFile(l.Path(day), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := l.ListDay(context.Background(), day)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != day+"-1" || rows[0].Entry != 100 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestLedger_BadNumber(t *testing.T) {
	l := open(t)
	doc := strings.Join(Header, ",") + "\n1,BTC-USDT,LONG,LOW,abc,98,104,,OPEN,,,0,0,10,0,x\n"
	os.WriteFile(l.Path(day), []byte(doc), 0o644)
	if _, err := l.ListDay(context.Background(), day); err == nil {
		t.Fatal("expected parse error")
	}
}
