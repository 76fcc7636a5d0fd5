package reservations

import (
	"fmt"
	"sync"
)

// slotLocks serialises writes per court and date. Entries are reference
// counted and removed once the last holder unlocks.
type slotLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{entries: make(map[string]*lockEntry)}
}

func slotKey(courtID int64, date string) string {
	return fmt.Sprintf("%d|%s", courtID, date)
}

// lock blocks until key is free and returns its unlock func.
func (l *slotLocks) lock(key string) func() {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

func (l *slotLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
