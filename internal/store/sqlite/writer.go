package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
	Logger zerolog.Logger
}

// Store is the SQLite signal ledger and 1m candle archive.
// It implements model.SignalLedger.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ model.SignalLedger = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	cfg.Logger.Info().Str("path", cfg.DBPath).Msg("sqlite opened")
	return &Store{db: db, log: cfg.Logger}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			day           TEXT    NOT NULL,
			seq           INTEGER NOT NULL,
			id            TEXT    NOT NULL,
			symbol        TEXT    NOT NULL,
			direction     TEXT    NOT NULL,
			tier          TEXT    NOT NULL,
			entry_price   REAL    NOT NULL,
			stop_loss     REAL    NOT NULL,
			take_profit   REAL    NOT NULL,
			issued_at     INTEGER NOT NULL,
			status        TEXT    NOT NULL,
			hit_time      INTEGER,
			hit_price     REAL,
			fee           REAL    NOT NULL DEFAULT 0,
			final_pnl     REAL    NOT NULL DEFAULT 0,
			position_size REAL    NOT NULL,
			return_pct    REAL    NOT NULL DEFAULT 0,
			provenance    TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (day, seq)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS signals_id ON signals (id);

		CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT    NOT NULL,
			tf     TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS candle_ranges (
			symbol  TEXT    NOT NULL,
			tf      TEXT    NOT NULL,
			from_ts INTEGER NOT NULL,
			to_ts   INTEGER NOT NULL,
			PRIMARY KEY (symbol, tf, from_ts, to_ts)
		);
	`)
	return err
}

const insertSignal = `
	INSERT INTO signals (day, seq, id, symbol, direction, tier, entry_price, stop_loss, take_profit,
		issued_at, status, hit_time, hit_price, fee, final_pnl, position_size, return_pct, provenance)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Append adds sig at the end of day.
func (s *Store) Append(ctx context.Context, day string, sig model.Signal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM signals WHERE day = ?`, day).Scan(&seq); err != nil {
		return fmt.Errorf("sqlite next seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertSignal, signalArgs(day, seq, sig)...); err != nil {
		return fmt.Errorf("sqlite insert signal: %w", err)
	}
	return tx.Commit()
}

// ReplaceDay rewrites the day's rows in one transaction.
func (s *Store) ReplaceDay(ctx context.Context, day string, sigs []model.Signal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE day = ?`, day); err != nil {
		return fmt.Errorf("sqlite clear day: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSignal)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, sig := range sigs {
		if _, err := stmt.ExecContext(ctx, signalArgs(day, int64(i+1), sig)...); err != nil {
			return fmt.Errorf("sqlite insert signal %s: %w", sig.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug().Str("day", day).Int("rows", len(sigs)).Msg("ledger day rewritten")
	return nil
}

func signalArgs(day string, seq int64, s model.Signal) []any {
	var hitTime, hitPrice any
	if !s.HitTime.IsZero() {
		hitTime = s.HitTime.UnixMilli()
		hitPrice = s.HitPrice
	}
	return []any{
		day, seq, s.ID, s.Symbol, string(s.Direction), string(s.Tier), s.Entry, s.Stop, s.Target,
		s.IssuedAt.UnixMilli(), string(s.Status), hitTime, hitPrice, s.Fee, s.FinalPnL,
		s.PositionSize, s.ReturnPct, s.Provenance,
	}
}

// SaveCandles archives candles in a single transaction and records that
// [from, to) is fully covered.
func (s *Store) SaveCandles(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time, candles []model.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("sqlite insert candle: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO candle_ranges (symbol, tf, from_ts, to_ts) VALUES (?, ?, ?, ?)`,
		symbol, string(tf), from.Unix(), to.Unix(),
	); err != nil {
		return fmt.Errorf("sqlite insert range: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug().Str("symbol", symbol).Str("tf", tf.String()).Int("candles", len(candles)).Msg("candles archived")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
