package boardlock

import (
	"context"
	"errors"
	"sync"
)

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker for single-instance deployments.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*memoryEntry)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (context.Context, ReleaseFunc, error) {
	entry := l.acquire(key)

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, entry)
		return ctx, func() {}, ctx.Err()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			<-entry.ch
			l.unref(key, entry)
			cancel(errors.New("lock released"))
		})
	}, nil
}

func (l *MemoryLocker) acquire(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) unref(key string, entry *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
