package usecase

import (
	"context"
	"fmt"
	"sync"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
)

// keyedLocks hands out one mutual-exclusion slot per key. Entries are
// reference counted and removed once no holder or waiter remains.
type keyedLocks struct {
	mu    sync.Mutex
	byKey map[string]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{byKey: make(map[string]*keyLock)}
}

// acquire blocks until the key is free or ctx is done. The returned release
// func is safe to call more than once.
func (l *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.byKey[key]
	if !ok {
		e = &keyLock{slot: make(chan struct{}, 1)}
		l.byKey[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("%w: %v", domain.ErrLockUnavailable, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			l.unref(key, e)
		})
	}, nil
}

func (l *keyedLocks) unref(key string, e *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 && l.byKey[key] == e {
		delete(l.byKey, key)
	}
}

func (l *keyedLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
