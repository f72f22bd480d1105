package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// fakeConn is an in-memory Conn that honours key TTLs.
type fakeConn struct {
	mu      sync.Mutex
	writes  []Publication
	keys    map[string]string
	expiry  map[string]time.Time
	renews  int
	failing bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{keys: map[string]string{}, expiry: map[string]time.Time{}}
}

// evict drops key if its TTL ran out. Callers hold mu.
func (f *fakeConn) evict(key string) {
	if at, ok := f.expiry[key]; ok && !time.Now().Before(at) {
		delete(f.keys, key)
		delete(f.expiry, key)
	}
}

func (f *fakeConn) Write(_ context.Context, p Publication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("connection refused")
	}
	f.writes = append(f.writes, p)
	return nil
}

func (f *fakeConn) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = value
	if ttl > 0 {
		f.expiry[key] = time.Now().Add(ttl)
	}
	return true, nil
}

func (f *fakeConn) ExpireIfEqual(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	if f.keys[key] != value {
		return false, nil
	}
	f.expiry[key] = time.Now().Add(ttl)
	f.renews++
	return true, nil
}

func (f *fakeConn) DelIfEqual(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evict(key)
	if f.keys[key] != value {
		return false, nil
	}
	delete(f.keys, key)
	return true, nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func testSignal() model.Signal {
	return model.Signal{ID: "id-1", Symbol: "BTC-USDT", Direction: model.Long, Tier: model.TierLow, Entry: 100, Stop: 98, Target: 104, Status: model.StatusOpen}
}

func TestPublisher_WritesStreamLatestChannel(t *testing.T) {
	conn := newFakeConn()
	p := NewPublisher(conn, NewCircuitBreaker(3, time.Second), zerolog.Nop())

	if err := p.PublishSignal(context.Background(), "2025-03-10", testSignal()); err != nil {
		t.Fatal(err)
	}
	if conn.count() != 1 {
		t.Fatalf("writes = %d", conn.count())
	}
	w := conn.writes[0]
	if w.Stream != "signals:2025-03-10" || w.LatestKey != "signal:latest:BTC-USDT" || w.Channel != SignalChannel {
		t.Errorf("publication = %+v", w)
	}
	var got model.Signal
	if err := json.Unmarshal([]byte(w.Payload), &got); err != nil || got.ID != "id-1" {
		t.Errorf("payload %q: %v", w.Payload, err)
	}
}

func TestPublisher_BuffersWhileOpenAndReplays(t *testing.T) {
	conn := newFakeConn()
	cb, clk := breaker(1, time.Second)
	p := NewPublisher(conn, cb, zerolog.Nop())
	flushed := make(chan int, 1)
	p.OnFlush = func(n int) { flushed <- n }
	ctx := context.Background()

	conn.setFailing(true)
	if err := p.PublishSignal(ctx, "2025-03-10", testSignal()); err == nil {
		t.Fatal("first failure should surface")
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("breaker = %v", cb.CurrentState())
	}

	// refused by the open breaker: buffered, not an error
	if err := p.PublishSignal(ctx, "2025-03-10", testSignal()); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishSignal(ctx, "2025-03-10", testSignal()); err != nil {
		t.Fatal(err)
	}
	if p.PendingCount() != 2 {
		t.Fatalf("pending = %d", p.PendingCount())
	}

	conn.setFailing(false)
	clk.advance(2 * time.Second)
	if err := p.PublishSignal(ctx, "2025-03-10", testSignal()); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-flushed:
		if n != 2 {
			t.Errorf("flushed %d, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("buffer was not replayed")
	}
	if conn.count() != 3 || p.PendingCount() != 0 {
		t.Errorf("writes=%d pending=%d", conn.count(), p.PendingCount())
	}
}

func TestPublisher_BufferCap(t *testing.T) {
	conn := newFakeConn()
	cb, _ := breaker(1, time.Hour)
	p := NewPublisher(conn, cb, zerolog.Nop())
	p.maxPend = 2
	conn.setFailing(true)
	ctx := context.Background()

	p.PublishSignal(ctx, "2025-03-10", testSignal())
	for _, day := range []string{"a", "b", "c"} {
		p.PublishSignal(ctx, day, testSignal())
	}
	if p.PendingCount() != 2 {
		t.Fatalf("pending = %d", p.PendingCount())
	}
	if p.pending[0].Stream != "signals:b" {
		t.Errorf("oldest should be dropped, head = %s", p.pending[0].Stream)
	}
}

func TestDayLock(t *testing.T) {
	conn := newFakeConn()
	l := NewDayLock(conn, time.Minute, 30*time.Millisecond)
	l.poll = 5 * time.Millisecond
	ctx := context.Background()

	release, err := l.Lock(ctx, "lock:ledger:2025-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Lock(ctx, "lock:ledger:2025-03-10"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second lock err = %v, want ErrLockHeld", err)
	}
	other, err := l.Lock(ctx, "lock:ledger:2025-03-11")
	if err != nil {
		t.Fatalf("different day should not contend: %v", err)
	}
	other()

	release()
	again, err := l.Lock(ctx, "lock:ledger:2025-03-10")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}

func TestDayLock_ReleaseKeepsForeignLease(t *testing.T) {
	conn := newFakeConn()
	l := NewDayLock(conn, time.Minute, 0)
	release, _ := l.Lock(context.Background(), "k")

	// lease expired and another process took it
	conn.mu.Lock()
	conn.keys["k"] = "someone-else"
	conn.mu.Unlock()
	release()
	if conn.keys["k"] != "someone-else" {
		t.Error("release deleted a lock it no longer owns")
	}
}

func TestDayLock_RenewsLeaseWhileHeld(t *testing.T) {
	conn := newFakeConn()
	l := NewDayLock(conn, 60*time.Millisecond, 0)
	ctx := context.Background()

	release, err := l.Lock(ctx, "lock:ledger:2025-03-10")
	if err != nil {
		t.Fatal(err)
	}
	// held for several leases, as a slow settlement run would
	time.Sleep(250 * time.Millisecond)
	if _, err := l.Lock(ctx, "lock:ledger:2025-03-10"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("lock taken over while held: err = %v", err)
	}
	release()

	conn.mu.Lock()
	renews := conn.renews
	conn.mu.Unlock()
	if renews < 3 {
		t.Errorf("renews = %d, want at least 3", renews)
	}
	again, err := l.Lock(ctx, "lock:ledger:2025-03-10")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}

func TestDayLock_UnrenewedLeaseExpires(t *testing.T) {
	conn := newFakeConn()
	l := NewDayLock(conn, 40*time.Millisecond, 0)
	l.renew = 0
	ctx := context.Background()

	release, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	time.Sleep(60 * time.Millisecond)
	other, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("expired lease should be free: %v", err)
	}
	other()
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Lock(context.Background(), "day")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "day"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline", err)
	}

	release()
	release() // idempotent
	r2, err := l.Lock(context.Background(), "day")
	if err != nil {
		t.Fatal(err)
	}
	r2()
}
