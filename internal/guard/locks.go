package guard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// keyedLocks hands out one mutex per key. Entries are refcounted and removed
// once nobody holds or waits on them, so the map only grows with the number
// of items currently in flight.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uuid.UUID]*keyedLock)}
}

// acquire blocks until the key is free, ctx is done or timeout elapses.
// On success the returned func releases the key.
func (k *keyedLocks) acquire(ctx context.Context, key uuid.UUID, timeout time.Duration) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.unref(key, l)
		}, nil
	case <-ctx.Done():
		k.unref(key, l)
		return nil, ctx.Err()
	case <-timer:
		k.unref(key, l)
		return nil, errLockTimeout
	}
}

func (k *keyedLocks) unref(key uuid.UUID, l *keyedLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// size reports how many keys are held or waited on.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
