package sqlite

import (
	"context"
	"time"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// CachingSource serves closed windows from the archive and fills the archive
// from upstream on a miss. Windows still open at the time of the call are
// always fetched upstream and never recorded as covered.
type CachingSource struct {
	store    *Store
	upstream model.CandleSource
	now      func() time.Time
}

var _ model.CandleSource = (*CachingSource)(nil)

// NewCachingSource wraps upstream with the store's archive.
func NewCachingSource(store *Store, upstream model.CandleSource) *CachingSource {
	return &CachingSource{store: store, upstream: upstream, now: time.Now}
}

// Candles implements model.CandleSource.
func (c *CachingSource) Candles(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Candle, error) {
	closed := !to.After(c.now())
	if closed {
		ok, err := c.store.Covered(ctx, symbol, tf, from, to)
		if err == nil && ok {
			return c.store.ReadCandles(ctx, symbol, tf, from, to)
		}
		if err != nil {
			c.store.log.Warn().Err(err).Str("symbol", symbol).Msg("archive lookup failed")
		}
	}

	candles, err := c.upstream.Candles(ctx, symbol, tf, from, to)
	if err != nil {
		return nil, err
	}
	if closed && len(candles) > 0 {
		if err := c.store.SaveCandles(ctx, symbol, tf, from, to, candles); err != nil {
			c.store.log.Warn().Err(err).Str("symbol", symbol).Msg("archive write failed")
		}
	}
	return candles, nil
}
