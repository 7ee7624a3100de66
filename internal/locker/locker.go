// Package locker tracks which bank accounts have an auto-match run in flight
// inside this process.
package locker

import "sync"

type Locker struct {
	mu           sync.Mutex
	inProcessMap map[string]bool
}

func New() *Locker {
	return &Locker{
		inProcessMap: make(map[string]bool),
	}
}

// TryLock marks key as processing. It returns false if key is already held.
func (l *Locker) TryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inProcessMap[key] {
		return false
	}
	l.inProcessMap[key] = true
	return true
}

// IsProcessing checks if key is currently held.
func (l *Locker) IsProcessing(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inProcessMap[key]
}

func (l *Locker) Unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inProcessMap, key)
}
