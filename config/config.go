package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultSymbols is the KuCoin watchlist used when SYMBOLS is unset.
const DefaultSymbols = "XAUT-USDT,BTC-USDT,ETH-USDT,BNB-USDT,SOL-USDT,XRP-USDT," +
	"ADA-USDT,DOGE-USDT,DOT-USDT,POL-USDT,LTC-USDT," +
	"TRX-USDT,AVAX-USDT,ATOM-USDT,XLM-USDT,NEAR-USDT," +
	"APT-USDT,ARB-USDT,OP-USDT,SUI-USDT,FIL-USDT"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Telegram delivery; both empty means signals are only logged.
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID" validate:"required_with=TelegramBotToken"`
	WebhookURL       string `env:"WEBHOOK_URL" validate:"omitempty,url"`

	// Watchlist
	Symbols string `env:"SYMBOLS"`

	// Storage
	LedgerBackend string `env:"LEDGER_BACKEND" default:"sqlite" validate:"oneof=sqlite csv"`
	SQLitePath    string `env:"SQLITE_PATH" default:"data/signals.db" validate:"required"`
	SignalsDir    string `env:"SIGNALS_DIR" default:"signals" validate:"required"`

	// Infrastructure; an empty RedisAddr disables the stream and the shared lock.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	MetricsAddr   string `env:"METRICS_ADDR" default:":9090"`
	APIAddr       string `env:"API_ADDR" default:":8080"`

	// Strategy file; a missing file means built-in defaults.
	StrategyConfig string `env:"STRATEGY_CONFIG" default:"config/strategy.yaml"`

	KuCoinBaseURL string `env:"KUCOIN_BASE_URL" default:"https://api.kucoin.com" validate:"url"`
	Concurrency   int    `env:"CONCURRENCY" default:"4" validate:"min=1,max=64"`

	// Cadence of the issuance loop in minutes, and the Tehran wall-clock time of the nightly run.
	CycleMinutes int `env:"CYCLE_MINUTES" default:"15" validate:"min=1"`
	NightlyHour  int `env:"NIGHTLY_HOUR" default:"0" validate:"min=0,max=23"`
	NightlyMin   int `env:"NIGHTLY_MINUTE" default:"5" validate:"min=0,max=59"`

	LogLevel  string `env:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

// Load reads .env (if present) and the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	if cfg.Symbols == "" {
		cfg.Symbols = DefaultSymbols
	}

	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("env")
		raw, ok := lookup(key)
		if key == "" || !ok || raw == "" {
			continue
		}
		f := v.Field(i)
		switch f.Kind() {
		case reflect.String:
			f.SetString(raw)
		case reflect.Int:
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("config: %s: %w", key, err)
			}
			f.SetInt(int64(n))
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// SymbolList parses Symbols into upper-cased pairs, skipping blanks and duplicates.
func (c *Config) SymbolList() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// TelegramEnabled reports whether Telegram credentials are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}
