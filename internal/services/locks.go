package services

import (
	"sort"
	"sync"
)

// keyLocker hands out one mutex per user id. Multi-user operations lock in
// sorted order so two transfers in opposite directions cannot deadlock.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*refMutex)}
}

// Lock acquires every key and returns the matching unlock.
func (l *keyLocker) Lock(keys ...string) func() {
	ordered := uniqueSorted(keys)
	held := make([]*refMutex, 0, len(ordered))
	for _, key := range ordered {
		m := l.acquire(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *keyLocker) acquire(key string) *refMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{}
		l.locks[key] = m
	}
	m.refs++
	return m
}

func (l *keyLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.locks[key]
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
