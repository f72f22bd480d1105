package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the decision engine and settlement from concrete
// providers (KuCoin, SQLite, CSV, Redis). Each implementation satisfies one
// or more of them.

// CandleSource returns candles for one (symbol, timeframe) in [from, to),
// ordered ascending by timestamp with no duplicates.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) ([]Candle, error)
}

// SignalLedger is the per-day signal record store.
// day is a Tehran calendar date in YYYY-MM-DD form.
type SignalLedger interface {
	// Append adds a freshly issued signal to the day's records.
	Append(ctx context.Context, day string, sig Signal) error

	// ListDay returns the day's signals in issuance order.
	ListDay(ctx context.Context, day string) ([]Signal, error)

	// ReplaceDay rewrites the day's records with sigs.
	ReplaceDay(ctx context.Context, day string, sigs []Signal) error

	// Close releases underlying resources.
	Close() error
}

// SignalPublisher fans issued signals out to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, day string, sig Signal) error
}

// Locker serializes writers of the same ledger day.
// The returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
