// Package csvledger keeps one CSV file per Tehran day, in the column layout
// the signal channel has always shared with its spreadsheet users.
package csvledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/calendar"
	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// Header is the column order of a day file.
var Header = []string{
	"id", "symbol", "direction", "risk_level", "entry_price", "stop_loss", "take_profit",
	"issued_at_tehran", "status", "hit_time_tehran", "hit_price", "broker_fee",
	"final_pnl_usd", "position_size_usd", "return_pct", "signal_source",
}

// Ledger is a model.SignalLedger over a directory of {day}.csv files.
type Ledger struct {
	dir string
	log zerolog.Logger
	mu  sync.Mutex
}

var _ model.SignalLedger = (*Ledger)(nil)

// Open creates dir if needed.
func Open(dir string, log zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvledger: %w", err)
	}
	return &Ledger{dir: dir, log: log}, nil
}

// Path returns the file backing day.
func (l *Ledger) Path(day string) string {
	return filepath.Join(l.dir, day+".csv")
}

// Append adds one row, writing the header first when the file is new.
func (l *Ledger) Append(_ context.Context, day string, sig model.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.Path(day)
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csvledger: open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if errors.Is(statErr, fs.ErrNotExist) {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write(encode(sig)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ListDay reads the day's rows. A missing file is an empty day.
func (l *Ledger) ListDay(_ context.Context, day string) ([]model.Signal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path(day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvledger: %w", err)
	}
	defer f.Close()
	return decodeAll(day, f)
}

// ReplaceDay rewrites the day's file atomically.
func (l *Ledger) ReplaceDay(_ context.Context, day string, sigs []model.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmp, err := os.CreateTemp(l.dir, day+".*.tmp")
	if err != nil {
		return fmt.Errorf("csvledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	w.Write(Header)
	for _, s := range sigs {
		w.Write(encode(s))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("csvledger: write %s: %w", day, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), l.Path(day)); err != nil {
		return fmt.Errorf("csvledger: rename: %w", err)
	}
	l.log.Debug().Str("day", day).Int("rows", len(sigs)).Msg("ledger day rewritten")
	return nil
}

// Close is a no-op; files are opened per call.
func (l *Ledger) Close() error { return nil }

func encode(s model.Signal) []string {
	hitPrice := ""
	if !s.HitTime.IsZero() {
		hitPrice = model.FormatPrice(s.HitPrice)
	}
	return []string{
		s.ID,
		s.Symbol,
		string(s.Direction),
		string(s.Tier),
		model.FormatPrice(s.Entry),
		model.FormatPrice(s.Stop),
		model.FormatPrice(s.Target),
		calendar.FormatTehran(s.IssuedAt),
		string(s.Status),
		calendar.FormatTehran(s.HitTime),
		hitPrice,
		model.FormatFixed(s.Fee, 6),
		model.FormatFixed(s.FinalPnL, 6),
		model.FormatFixed(s.PositionSize, 2),
		model.FormatFixed(s.ReturnPct, 4),
		s.Provenance,
	}
}

func decodeAll(day string, r io.Reader) ([]model.Signal, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvledger: header: %w", err)
	}
	col := make(map[string]int, len(head))
	for i, h := range head {
		col[h] = i
	}

	var out []model.Signal
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csvledger: %s row %d: %w", day, n, err)
		}
		s, err := decode(col, rec)
		if err != nil {
			return nil, fmt.Errorf("csvledger: %s row %d: %w", day, n, err)
		}
		if s.ID == "" {
			// files written before ids existed
			s.ID = day + "-" + strconv.Itoa(n)
		}
		out = append(out, s)
	}
}

func decode(col map[string]int, rec []string) (model.Signal, error) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	var firstErr error
	num := func(name string) float64 {
		v := get(name)
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", name, err)
		}
		return f
	}

	s := model.Signal{
		ID:           get("id"),
		Symbol:       get("symbol"),
		Direction:    model.Direction(get("direction")),
		Tier:         model.TierKey(get("risk_level")),
		Entry:        num("entry_price"),
		Stop:         num("stop_loss"),
		Target:       num("take_profit"),
		Status:       model.Status(get("status")),
		HitPrice:     num("hit_price"),
		Fee:          num("broker_fee"),
		FinalPnL:     num("final_pnl_usd"),
		PositionSize: num("position_size_usd"),
		ReturnPct:    num("return_pct"),
		Provenance:   get("signal_source"),
	}
	if s.Status == "" {
		s.Status = model.StatusOpen
	}
	var err error
	if s.IssuedAt, err = calendar.ParseTehran(get("issued_at_tehran")); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.HitTime, err = calendar.ParseTehran(get("hit_time_tehran")); err != nil && firstErr == nil {
		firstErr = err
	}
	return s, firstErr
}
