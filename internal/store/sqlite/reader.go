package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// ListDay returns the day's signals in issuance order.
func (s *Store) ListDay(ctx context.Context, day string) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, direction, tier, entry_price, stop_loss, take_profit, issued_at, status,
			hit_time, hit_price, fee, final_pnl, position_size, return_pct, provenance
		FROM signals
		WHERE day = ?
		ORDER BY seq ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var (
			sig               model.Signal
			dir, tier, status string
			issued            int64
			hitTime           sql.NullInt64
			hitPrice          sql.NullFloat64
		)
		if err := rows.Scan(&sig.ID, &sig.Symbol, &dir, &tier, &sig.Entry, &sig.Stop, &sig.Target, &issued, &status,
			&hitTime, &hitPrice, &sig.Fee, &sig.FinalPnL, &sig.PositionSize, &sig.ReturnPct, &sig.Provenance); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		sig.Direction = model.Direction(dir)
		sig.Tier = model.TierKey(tier)
		sig.Status = model.Status(status)
		sig.IssuedAt = time.UnixMilli(issued).UTC()
		if hitTime.Valid {
			sig.HitTime = time.UnixMilli(hitTime.Int64).UTC()
		}
		if hitPrice.Valid {
			sig.HitPrice = hitPrice.Float64
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Covered reports whether [from, to) was archived in full by an earlier SaveCandles.
func (s *Store) Covered(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM candle_ranges
		WHERE symbol = ? AND tf = ? AND from_ts <= ? AND to_ts >= ?
	`, symbol, string(tf), from.Unix(), to.Unix()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite query ranges: %w", err)
	}
	return n > 0, nil
}

// ReadCandles returns archived candles in [from, to), ordered ascending.
func (s *Store) ReadCandles(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, string(tf), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var ts int64
		var vol sql.NullFloat64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.TS = time.Unix(ts, 0).UTC()
		c.Volume = vol.Float64
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LastTimestamp returns the newest archived candle time, or the zero time.
func (s *Store) LastTimestamp(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, string(tf),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}
