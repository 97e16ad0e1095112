package session

import (
	"context"
	"sync"
)

// lockTable hands out one exclusive lock per session ID. Entries are
// reference counted and dropped once no holder or waiter remains.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the session lock is held or ctx is done. The
// returned func releases it.
func (t *lockTable) acquire(ctx context.Context, id string) (func(), error) {
	t.mu.Lock()
	entry, ok := t.locks[id]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		t.locks[id] = entry
	}
	entry.refs++
	t.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		t.release(id, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { t.release(id, entry, true) })
	}, nil
}

func (t *lockTable) release(id string, entry *lockEntry, held bool) {
	if held {
		<-entry.sem
	}
	t.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(t.locks, id)
	}
	t.mu.Unlock()
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
