package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

const (
	// SignalChannel carries every issued signal.
	SignalChannel = "pub:signals"

	signalStreamMaxLen = 5000
	latestSignalTTL    = 24 * time.Hour
	defaultMaxPending  = 1000
)

// LatestSignalKey holds the newest signal of a symbol.
func LatestSignalKey(symbol string) string { return "signal:latest:" + symbol }

// Publisher fans issued signals out through Redis behind a circuit breaker.
// While the breaker is open, publications are buffered in memory (oldest
// dropped beyond the cap) and replayed when it closes again.
type Publisher struct {
	conn Conn
	cb   *CircuitBreaker
	log  zerolog.Logger

	mu      sync.Mutex
	pending []Publication
	maxPend int

	// OnBuffer is called when a publication is buffered.
	OnBuffer func()
	// OnFlush is called after buffered publications are replayed.
	OnFlush func(count int)
}

var _ model.SignalPublisher = (*Publisher)(nil)

// NewPublisher wraps conn with cb.
func NewPublisher(conn Conn, cb *CircuitBreaker, log zerolog.Logger) *Publisher {
	p := &Publisher{
		conn:    conn,
		cb:      cb,
		log:     log,
		maxPend: defaultMaxPending,
	}
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		log.Info().Str("from", from.String()).Str("to", to.String()).Msg("redis breaker")
		if to == StateClosed {
			go p.flush(context.Background())
		}
	}
	return p
}

// PublishSignal writes sig to signals:{day}, signal:latest:{symbol} and pub:signals.
// A publication refused by the open breaker is buffered and nil is returned.
func (p *Publisher) PublishSignal(ctx context.Context, day string, sig model.Signal) error {
	pub := Publication{
		Stream:    model.SignalStreamKey(day),
		MaxLen:    signalStreamMaxLen,
		LatestKey: LatestSignalKey(sig.Symbol),
		TTL:       latestSignalTTL,
		Channel:   SignalChannel,
		Payload:   string(sig.JSON()),
	}
	err := p.cb.Execute(func() error { return p.conn.Write(ctx, pub) })
	if errors.Is(err, ErrCircuitOpen) {
		p.buffer(pub)
		return nil
	}
	return err
}

func (p *Publisher) buffer(pub Publication) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) >= p.maxPend {
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, pub)
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	toFlush := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(toFlush) == 0 {
		return
	}

	flushed := 0
	for _, pub := range toFlush {
		if err := p.conn.Write(ctx, pub); err != nil {
			p.log.Warn().Err(err).Str("stream", pub.Stream).Msg("replay of buffered signal failed")
			continue
		}
		flushed++
	}
	p.log.Info().Int("flushed", flushed).Int("buffered", len(toFlush)).Msg("buffered signals replayed")
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered publications.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
