package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/risk"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(env(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LedgerBackend != "sqlite" || cfg.Concurrency != 4 || cfg.LogFormat != "json" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if got := len(cfg.SymbolList()); got != 21 {
		t.Errorf("default watchlist has %d symbols, want 21", got)
	}
	if cfg.TelegramEnabled() {
		t.Error("telegram should be disabled without credentials")
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(env(map[string]string{
		"SYMBOLS":            " btc-usdt, ETH-USDT ,,BTC-USDT",
		"LEDGER_BACKEND":     "csv",
		"CONCURRENCY":        "8",
		"TELEGRAM_BOT_TOKEN": "123:abc",
		"TELEGRAM_CHAT_ID":   "-100",
		"REDIS_ADDR":         "localhost:6379",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"BTC-USDT", "ETH-USDT"}; !reflect.DeepEqual(cfg.SymbolList(), want) {
		t.Errorf("symbols = %v, want %v", cfg.SymbolList(), want)
	}
	if cfg.LedgerBackend != "csv" || cfg.Concurrency != 8 || cfg.RedisAddr != "localhost:6379" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !cfg.TelegramEnabled() {
		t.Error("telegram should be enabled")
	}
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"backend", map[string]string{"LEDGER_BACKEND": "postgres"}},
		{"concurrency", map[string]string{"CONCURRENCY": "0"}},
		{"concurrency not a number", map[string]string{"CONCURRENCY": "many"}},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"token without chat", map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc"}},
		{"webhook", map[string]string{"WEBHOOK_URL": "not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromLookup(env(tt.vars)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadStrategy_MissingFileUsesDefaults(t *testing.T) {
	s, err := LoadStrategy(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.Table.Tiers(), risk.DefaultTiers()) {
		t.Error("missing file should yield the default table")
	}
	if s.Settlement.FeeRate != 0.001 {
		t.Errorf("fee rate = %v", s.Settlement.FeeRate)
	}
}

func TestLoadStrategy_ExampleMatchesDefaults(t *testing.T) {
	s, err := LoadStrategy("strategy.example.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.Table.Tiers(), risk.DefaultTiers()) {
		t.Errorf("example tiers drift from defaults:\n%+v", s.Table.Tiers())
	}
	d := DefaultStrategyFile()
	if !reflect.DeepEqual(s.Indicators, d.Indicators) || !reflect.DeepEqual(s.Engine, d.Engine) {
		t.Error("example indicator or engine section drifts from defaults")
	}
}

func TestLoadStrategy_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	doc := "engine:\n  ambiguity_margin: 0.05\nsettlement:\n  slippage: 0\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadStrategy(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Engine.AmbiguityMargin != 0.05 || s.Settlement.Slippage != 0 {
		t.Errorf("override not applied: %+v %+v", s.Engine, s.Settlement)
	}
	if s.Engine.AlignmentTF != model.TF30m || s.Settlement.FeeRate != 0.001 {
		t.Error("untouched fields lost their defaults")
	}
}

func TestLoadStrategy_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad timeframe", "synthesizer:\n  atr_tf: 2h\n"},
		{"margin negative", "engine:\n  ambiguity_margin: -1\n"},
		{"one tier", "tiers:\n  - key: LOW\n    rsi_long: 55\n    macd_strong_mult: 1\n"},
		{"not yaml", "tiers: [:\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadStrategy(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadStrategy_Unreadable(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadStrategy(dir) // a directory, not a file
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "strategy") {
		t.Errorf("error should mention the strategy file: %v", err)
	}
}
