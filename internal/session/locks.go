package session

import "sync"

// lockMap hands out one RWMutex per session key. Entries are reference
// counted and dropped when the last holder releases, so the map only holds
// sessions with in-flight operations.
type lockMap struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	rw   sync.RWMutex
	refs int
}

func newLockMap() *lockMap {
	return &lockMap{entries: make(map[string]*lockEntry)}
}

func (m *lockMap) lock(key string, write bool) func() {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &lockEntry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	if write {
		e.rw.Lock()
	} else {
		e.rw.RLock()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if write {
				e.rw.Unlock()
			} else {
				e.rw.RUnlock()
			}
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// size returns the number of live entries.
func (m *lockMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
