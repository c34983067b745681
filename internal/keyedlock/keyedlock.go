// Package keyedlock provides a mutex per string key. Entries are reference
// counted and dropped once no goroutine holds or waits on them, so the map
// only grows with the number of keys in use.
package keyedlock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out per-key mutexes. The zero value is ready to use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock blocks until the lock for key is held and returns its unlock func.
func (m *Map) Lock(key string) (unlock func()) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports how many keys currently have holders or waiters.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
