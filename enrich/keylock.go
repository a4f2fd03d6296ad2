package enrich

import (
	"context"
	"sync"
)

// KeyLock is a per-key mutual-exclusion map with reference counting. The
// coordinator holds one of these locks, keyed by identity hash, around the
// whole miss path so concurrent cold lookups for the same identity collapse
// into a single paid provider call. Different keys never contend.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	// ch holds one token; owning the token means owning the lock. A channel
	// rather than a sync.Mutex so acquisition can respect a context deadline.
	ch   chan struct{}
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the lock for key is held or ctx is done. On success
// it returns a release function that must be called exactly once.
func (l *KeyLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		e.ch <- struct{}{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case <-e.ch:
		var once sync.Once
		return func() {
			once.Do(func() {
				e.ch <- struct{}{}
				l.unref(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

// unref drops one reference and removes the entry once nobody is waiting on
// or holding it. Entries only live while a key is contended, so the map does
// not grow with the identity space.
func (l *KeyLock) unref(key string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// Len reports how many keys are currently locked or contended.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
