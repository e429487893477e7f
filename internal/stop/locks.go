package stop

import (
	"context"
	"fmt"
	"sync"
)

// symbolLock is a channel-backed mutex so acquisition can be abandoned when
// the caller's context is cancelled, which a bare sync.Mutex cannot do.
// refs counts holders and waiters; it is guarded by the registry's mutex.
type symbolLock struct {
	ch   chan struct{}
	refs int
}

func newSymbolLock() *symbolLock {
	return &symbolLock{ch: make(chan struct{}, 1)}
}

// lockRegistry is a shared map of per-symbol locks. Locks are created
// lazily under a single short-held meta-lock, so two goroutines racing to
// lock a fresh symbol still end up serialized on the same mutex. Entries
// are refcounted and evicted as soon as nobody holds or waits on them, so
// the map does not grow with every symbol ever traded.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*symbolLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*symbolLock)}
}

// acquire blocks until the symbol's lock is held or ctx is cancelled. On
// success the caller must pair it with release.
func (r *lockRegistry) acquire(ctx context.Context, symbol string) (*symbolLock, error) {
	r.mu.Lock()
	l, ok := r.locks[symbol]
	if !ok {
		l = newSymbolLock()
		r.locks[symbol] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return l, nil
	case <-ctx.Done():
		r.drop(symbol, l)
		return nil, fmt.Errorf("stop: acquire %s lock: %w", symbol, ctx.Err())
	}
}

// release unlocks and evicts the registry entry once the last reference is
// gone.
func (r *lockRegistry) release(symbol string, l *symbolLock) {
	<-l.ch
	r.drop(symbol, l)
}

func (r *lockRegistry) drop(symbol string, l *symbolLock) {
	r.mu.Lock()
	l.refs--
	if l.refs == 0 && r.locks[symbol] == l {
		delete(r.locks, symbol)
	}
	r.mu.Unlock()
}

// size reports the number of live entries.
func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
