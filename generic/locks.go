package generic

import (
	"context"
	"sync"
)

// =============================================================================
// KEYED MUTEX - One lock per entity, entries freed when idle
// =============================================================================

// KeyedMutex serializes work per key (order id, approval id) while letting
// different keys proceed in parallel. No two keys share a lock.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock blocks until the key is free or ctx is done. The returned func
// releases the lock and must be called exactly once.
func (km *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	km.mu.Lock()
	if km.entries == nil {
		km.entries = make(map[string]*keyedEntry)
	}
	e, ok := km.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		km.entries[key] = e
	}
	e.refs++
	km.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				km.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		km.release(key, e)
		return nil, ctx.Err()
	}
}

func (km *KeyedMutex) release(key string, e *keyedEntry) {
	km.mu.Lock()
	defer km.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
}

// Len reports how many keys currently have holders or waiters.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.entries)
}
