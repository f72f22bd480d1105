package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaxboy65/KhosroSignalAnalyzerBot/internal/model"
)

// ErrLockHeld is returned when a lock could not be acquired before the wait ran out.
var ErrLockHeld = errors.New("redis: lock held")

// DayLock is a model.Locker over SET NX PX, shared by every process pointed
// at the same Redis. The holder renews the lease every lease/3 until it
// releases; the lease expires on its own if the holder dies.
type DayLock struct {
	conn  Conn
	lease time.Duration
	wait  time.Duration
	poll  time.Duration
	renew time.Duration
}

var _ model.Locker = (*DayLock)(nil)

// NewDayLock creates a lock with the given lease and maximum wait.
func NewDayLock(conn Conn, lease, wait time.Duration) *DayLock {
	return &DayLock{conn: conn, lease: lease, wait: wait, poll: 100 * time.Millisecond, renew: lease / 3}
}

// Lock acquires key, polling until it is free, the wait elapses or ctx ends.
func (l *DayLock) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.conn.SetNX(ctx, key, token, l.lease)
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.keepAlive(key, token, stop, done)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					// ctx may already be done here
					rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					l.conn.DelIfEqual(rctx, key, token)
				})
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

// keepAlive extends the lease while the token still owns key. It gives up
// once the key belongs to someone else.
func (l *DayLock) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if l.renew <= 0 {
		return
	}
	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.renew)
			ok, err := l.conn.ExpireIfEqual(ctx, key, token, l.lease)
			cancel()
			if err == nil && !ok {
				return
			}
		}
	}
}

// LocalLocker is an in-process keyed mutex, used when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

var _ model.Locker = (*LocalLocker)(nil)

// NewLocalLocker creates an empty keyed mutex.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx ends.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
