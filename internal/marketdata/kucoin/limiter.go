package kucoin

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacer spaces the requests of one client through a shared token bucket.
type pacer struct {
	lim *rate.Limiter
	now func() time.Time
}

func newPacer(burst, perSec float64) *pacer {
	b := int(burst)
	if b < 1 {
		b = 1
	}
	return &pacer{lim: rate.NewLimiter(rate.Limit(perSec), b), now: time.Now}
}

// reserve takes a token and returns how long the caller must wait for it.
func (p *pacer) reserve() time.Duration {
	now := p.now()
	r := p.lim.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	return r.DelayFrom(now)
}

func (p *pacer) wait(ctx context.Context, sleep func(context.Context, time.Duration) error) error {
	if d := p.reserve(); d > 0 {
		return sleep(ctx, d)
	}
	return nil
}
